// Package sourcemap implements the mapping from emitted VM instruction
// indices to source locations (spec.md §4.5
// tail, §3 "Source Map"). Grounded on the teacher's pkg/rtl/printer.go
// convention of annotating each printed instruction with its originating
// construct; here the annotation is captured as data instead of text so
// it survives past pretty-printing.
package sourcemap

import "scriptc/pkg/source"

// Entry is one source-map row.
type Entry struct {
	InstrIndex int
	Loc        source.Location
}

// Map is a SourceMap for one compiled program: forward lookup by
// instruction index (Lookup), plus every recorded row in index order
// (Entries). It has no reverse lookup method; finding the instructions
// for a source location means scanning Entries.
type Map struct {
	byIndex map[int]source.Location
	entries []Entry // kept in insertion order, which the emitter guarantees is index order
}

// New creates an empty Map.
func New() *Map {
	return &Map{byIndex: make(map[int]source.Location)}
}

// Record associates instrIndex with loc. The Bytecode Emitter calls this
// once per emitted VM instruction (spec.md §4.5: "records, for each
// emitted VM instruction, the (line, col, length) of the IR instruction
// that produced it").
func (m *Map) Record(instrIndex int, loc source.Location) {
	m.byIndex[instrIndex] = loc
	m.entries = append(m.entries, Entry{InstrIndex: instrIndex, Loc: loc})
}

// Lookup returns the source location that produced instrIndex.
func (m *Map) Lookup(instrIndex int) (source.Location, bool) {
	loc, ok := m.byIndex[instrIndex]
	return loc, ok
}

// Len reports how many instructions have a recorded mapping.
func (m *Map) Len() int { return len(m.byIndex) }

// Covers reports whether every instruction index in [0, count) has a
// recorded mapping — the existence half of the testable property of
// spec.md §8 #7. Whether a recorded location lies within the originating
// source is not checked (prologue and epilogue instructions are recorded
// with a zero Location).
func (m *Map) Covers(count int) bool {
	for i := 0; i < count; i++ {
		if _, ok := m.byIndex[i]; !ok {
			return false
		}
	}
	return true
}

// Entries returns every recorded (index, location) pair in the order
// they were recorded.
func (m *Map) Entries() []Entry { return m.entries }
