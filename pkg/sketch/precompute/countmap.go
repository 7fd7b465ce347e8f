package precompute

// countMap is an open-addressed hash map from a packed 64-bit
// (head_id << 32 | collocate_id) key to a 32-bit count. It is owned by a
// single scan task; flushing sorts and drains it to run files.
type countMap struct {
	keys []uint64
	vals []uint32
	n    int
	mask uint64
}

// emptyKey marks a vacant slot. The packed key space cannot produce it
// without both ids being 0xFFFFFFFF.
const emptyKey = ^uint64(0)

func newCountMap(capacity int) *countMap {
	size := 1024
	for size < capacity*2 {
		size <<= 1
	}
	m := &countMap{
		keys: make([]uint64, size),
		vals: make([]uint32, size),
		mask: uint64(size - 1),
	}
	for i := range m.keys {
		m.keys[i] = emptyKey
	}
	return m
}

func packKey(head, coll uint32) uint64 { return uint64(head)<<32 | uint64(coll) }

func unpackKey(key uint64) (head, coll uint32) {
	return uint32(key >> 32), uint32(key)
}

// inc adds delta to a key's count, growing on high load.
func (m *countMap) inc(key uint64, delta uint32) {
	if m.n*4 >= len(m.keys)*3 {
		m.grow()
	}
	i := splitmix(key) & m.mask
	for {
		switch m.keys[i] {
		case key:
			m.vals[i] += delta
			return
		case emptyKey:
			m.keys[i] = key
			m.vals[i] = delta
			m.n++
			return
		}
		i = (i + 1) & m.mask
	}
}

func (m *countMap) len() int { return m.n }

// drain appends all occupied entries to dst and clears the map.
func (m *countMap) drain(dst []runRecord) []runRecord {
	for i, k := range m.keys {
		if k == emptyKey {
			continue
		}
		dst = append(dst, runRecord{Key: k, Count: m.vals[i]})
		m.keys[i] = emptyKey
	}
	m.n = 0
	return dst
}

func (m *countMap) grow() {
	oldKeys, oldVals := m.keys, m.vals
	m.keys = make([]uint64, len(oldKeys)*2)
	m.vals = make([]uint32, len(oldVals)*2)
	m.mask = uint64(len(m.keys) - 1)
	m.n = 0
	for i := range m.keys {
		m.keys[i] = emptyKey
	}
	for i, k := range oldKeys {
		if k != emptyKey {
			m.inc(k, oldVals[i])
		}
	}
}

// splitmix finalizes a key into a well-mixed slot index.
func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
