package engine

import (
	"sync/atomic"

	"github.com/chiron-chess/chiron/pkg/common"
)

const (
	boundEmpty = iota
	boundExact
	boundUpper
	boundLower
)

// transTable is a direct-mapped cache indexed by key mod N. A per-entry
// gate keeps probes from observing a half-written entry; contention just
// skips the slot.
type transTable struct {
	entries    []transEntry
	generation uint8
}

type transEntry struct {
	gate  int32
	key32 uint32
	move  common.Move
	score int16
	depth int8
	bound uint8
	age   uint8
}

func newTransTable(size int) *transTable {
	if size <= 0 {
		size = 1 << 20
	}
	return &transTable{
		entries: make([]transEntry, size),
	}
}

func (t *transTable) Clear() {
	for i := range t.entries {
		t.entries[i] = transEntry{}
	}
	t.generation = 0
}

func (t *transTable) NextGeneration() {
	t.generation++
}

// Resize drops all entries.
func (t *transTable) Resize(size int) {
	if size <= 0 || size == len(t.entries) {
		return
	}
	t.entries = make([]transEntry, size)
}

func (t *transTable) index(key uint64) int {
	return int(key % uint64(len(t.entries)))
}

func (t *transTable) Probe(key uint64, ply int) (depth, score int, move common.Move, bound int, ok bool) {
	var entry = &t.entries[t.index(key)]
	if atomic.CompareAndSwapInt32(&entry.gate, 0, 1) {
		if entry.bound != boundEmpty && entry.key32 == uint32(key>>32) {
			depth = int(entry.depth)
			score = valueFromTT(int(entry.score), ply)
			move = entry.move
			bound = int(entry.bound)
			ok = true
		}
		atomic.StoreInt32(&entry.gate, 0)
	}
	return
}

// Store replaces the slot when it is empty, not deeper than the new entry,
// or left over from an older search.
func (t *transTable) Store(key uint64, depth, score int, move common.Move, bound, ply int) {
	var entry = &t.entries[t.index(key)]
	if atomic.CompareAndSwapInt32(&entry.gate, 0, 1) {
		if entry.bound == boundEmpty ||
			int(entry.depth) <= depth ||
			entry.age != t.generation {
			entry.key32 = uint32(key >> 32)
			entry.move = move
			entry.score = int16(valueToTT(score, ply))
			entry.depth = int8(depth)
			entry.bound = uint8(bound)
			entry.age = t.generation
		}
		atomic.StoreInt32(&entry.gate, 0)
	}
}

// Mate scores are stored relative to the entry's ply so that hits at a
// different ply denormalize correctly.
func valueToTT(v, ply int) int {
	if v > valueWin {
		return v + ply
	}
	if v < valueLoss {
		return v - ply
	}
	return v
}

func valueFromTT(v, ply int) int {
	if v > valueWin {
		return v - ply
	}
	if v < valueLoss {
		return v + ply
	}
	return v
}
