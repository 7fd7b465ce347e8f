package precompute

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// Run files hold one sorted flush of the scan's count map for one shard:
// "SKRN", a u32 record count, (key u64, count u32) records in ascending key
// order, and a trailing CRC-32 over the records. Runs are immutable once
// closed; a truncated or corrupt run fails with ErrIndexFormat and its shard
// is recomputable from the sealed index.
var runMagic = [4]byte{'S', 'K', 'R', 'N'}

type runRecord struct {
	Key   uint64
	Count uint32
}

// writeRunFile sorts records by key and writes them as one immutable run.
func writeRunFile(path string, records []runRecord) error {
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create run file: %v", internalerr.ErrIndexIO, err)
	}
	defer f.Close()

	crc := crc32.NewIEEE()
	var hdr [8]byte
	copy(hdr[0:4], runMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(records)))
	if _, err := f.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: write run header: %v", internalerr.ErrIndexIO, err)
	}

	var rec [12]byte
	for _, r := range records {
		binary.LittleEndian.PutUint64(rec[0:8], r.Key)
		binary.LittleEndian.PutUint32(rec[8:12], r.Count)
		if _, err := f.Write(rec[:]); err != nil {
			return fmt.Errorf("%w: write run record: %v", internalerr.ErrIndexIO, err)
		}
		crc.Write(rec[:])
	}

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	if _, err := f.Write(sum[:]); err != nil {
		return fmt.Errorf("%w: write run checksum: %v", internalerr.ErrIndexIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close run file: %v", internalerr.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: finalize run file: %v", internalerr.ErrIndexIO, err)
	}
	return nil
}

// readRunFile loads and validates one run.
func readRunFile(path string) ([]runRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read run file %s: %v", internalerr.ErrIndexIO, path, err)
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: run file %s shorter than header", internalerr.ErrIndexFormat, path)
	}
	if [4]byte(data[0:4]) != runMagic {
		return nil, fmt.Errorf("%w: bad run magic in %s", internalerr.ErrIndexFormat, path)
	}
	count := binary.LittleEndian.Uint32(data[4:8])
	want := 8 + int(count)*12 + 4
	if len(data) != want {
		return nil, fmt.Errorf("%w: run file %s truncated: %d bytes, want %d",
			internalerr.ErrIndexFormat, path, len(data), want)
	}

	body := data[8 : 8+int(count)*12]
	sum := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: run file %s checksum mismatch", internalerr.ErrIndexFormat, path)
	}

	records := make([]runRecord, count)
	for i := range records {
		off := i * 12
		records[i].Key = binary.LittleEndian.Uint64(body[off : off+8])
		records[i].Count = binary.LittleEndian.Uint32(body[off+8 : off+12])
	}
	return records, nil
}

// mergeRuns k-way merges sorted runs, aggregating counts of identical keys.
// The callback sees keys in strictly ascending order.
func mergeRuns(runs [][]runRecord, emit func(key uint64, count uint64)) {
	cursors := make([]int, len(runs))
	for {
		minKey := emptyKey
		for i, run := range runs {
			if cursors[i] < len(run) && run[cursors[i]].Key < minKey {
				minKey = run[cursors[i]].Key
			}
		}
		if minKey == emptyKey {
			return
		}
		var total uint64
		for i, run := range runs {
			for cursors[i] < len(run) && run[cursors[i]].Key == minKey {
				total += uint64(run[cursors[i]].Count)
				cursors[i]++
			}
		}
		emit(minKey, total)
	}
}
