package score

import (
	"math"
	"testing"
)

func TestDiceBounds(t *testing.T) {
	cases := []struct{ fab, fa, fb int64 }{
		{1, 1, 1}, {1, 2, 2}, {100, 100, 100}, {1, 1000000, 1000000}, {5, 10, 3},
	}
	for _, c := range cases {
		d := Dice(c.fab, c.fa, c.fb)
		if d < 0 || d > 14 {
			t.Errorf("Dice(%d,%d,%d) = %f outside [0,14]", c.fab, c.fa, c.fb, d)
		}
	}
}

func TestDiceKnownValues(t *testing.T) {
	// f_ab == f_a == f_b gives the maximum: 14 + log2(2f/2f) = 14.
	if d := Dice(10, 10, 10); d != 14 {
		t.Errorf("Dice(10,10,10) = %f, want 14", d)
	}
	// 14 + log2(2*1/(2+2)) = 13.
	if d := Dice(1, 2, 2); math.Abs(d-13) > 1e-9 {
		t.Errorf("Dice(1,2,2) = %f, want 13", d)
	}
}

func TestDiceDegenerate(t *testing.T) {
	for _, c := range [][3]int64{{0, 5, 5}, {5, 0, 5}, {5, 5, 0}, {-1, 5, 5}} {
		if d := Dice(c[0], c[1], c[2]); d != 0 {
			t.Errorf("Dice(%v) = %f, want 0", c, d)
		}
	}
}

func TestMI3(t *testing.T) {
	// log2(8 * 100 / 4) = log2(200).
	got := MI3Score(2, 2, 2, 100)
	want := math.Log2(200)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("MI3Score = %f, want %f", got, want)
	}
	if !isFinite(got) {
		t.Error("MI3 not finite for positive frequencies")
	}
}

func TestTScore(t *testing.T) {
	// (4 - 8*8/100) / 2 = 1.68.
	got := T(4, 8, 8, 100)
	if math.Abs(got-1.68) > 1e-9 {
		t.Errorf("T = %f, want 1.68", got)
	}
	if !isFinite(T(1, 1, 1, 1)) {
		t.Error("t-score not finite for positive frequencies")
	}
}

func TestLogLikelihood(t *testing.T) {
	if LL(0, 5, 5, 100) != 0 {
		t.Error("LL with zero cooccurrence should be 0")
	}
	got := LL(4, 8, 8, 100)
	want := 2 * 4 * math.Log(4.0*100/(8*8))
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("LL = %f, want %f", got, want)
	}
	if !isFinite(got) {
		t.Error("LL not finite for positive frequencies")
	}
}

func TestScoreDispatch(t *testing.T) {
	if Score(LogDice, 1, 2, 2, 100) != Dice(1, 2, 2) {
		t.Error("dispatch logdice")
	}
	if Score(MI3, 2, 2, 2, 100) != MI3Score(2, 2, 2, 100) {
		t.Error("dispatch mi3")
	}
	if Score(TScore, 4, 8, 8, 100) != T(4, 8, 8, 100) {
		t.Error("dispatch tscore")
	}
	if Score(LogLikelihood, 4, 8, 8, 100) != LL(4, 8, 8, 100) {
		t.Error("dispatch ll")
	}
	if Score("bogus", 1, 2, 2, 100) != Dice(1, 2, 2) {
		t.Error("unknown measure should fall back to logDice")
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
