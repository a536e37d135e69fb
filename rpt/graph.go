package rpt

import "sort"

// entry is one slot of a neighbor list. fresh marks entries not yet used in a local join.
type entry struct {
	id    int
	dist  float64
	fresh bool
}

// neighborList keeps the k closest entries sorted by distance.
type neighborList struct {
	k       int
	entries []entry
}

func newNeighborList(k int) *neighborList {
	return &neighborList{k: k, entries: make([]entry, 0, k)}
}

// full reports whether the list holds k entries.
func (l *neighborList) full() bool {
	return len(l.entries) >= l.k
}

// accepts reports whether push would keep an entry at distance d.
func (l *neighborList) accepts(d float64) bool {
	if l.k == 0 {
		return false
	}
	return !l.full() || d < l.entries[len(l.entries)-1].dist
}

// push inserts id when it is not present and closer than the worst entry.
// It reports whether the list changed.
func (l *neighborList) push(id int, dist float64) bool {
	if l.k == 0 {
		return false
	}
	if l.full() && dist >= l.entries[len(l.entries)-1].dist {
		return false
	}
	for _, e := range l.entries {
		if e.id == id {
			return false
		}
	}
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].dist > dist })
	if l.full() {
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry{id: id, dist: dist, fresh: true}
	return true
}
