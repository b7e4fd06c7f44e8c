package engine

import "github.com/chiron-chess/chiron/pkg/common"

const historyLimit = 4000

// historyTable scores quiet moves by side, from-square and to-square.
type historyTable struct {
	values [2 * 64 * 64]int32
}

func historyIndex(whiteMove bool, m common.Move) int {
	var side = 0
	if !whiteMove {
		side = 1
	}
	return side*64*64 + m.From()*64 + m.To()
}

func (h *historyTable) Clear() {
	for i := range h.values {
		h.values[i] = 0
	}
}

func (h *historyTable) Score(whiteMove bool, m common.Move) int {
	return int(h.values[historyIndex(whiteMove, m)])
}

func (h *historyTable) Update(whiteMove bool, m common.Move, depth int) {
	var index = historyIndex(whiteMove, m)
	var v = h.values[index] + int32(depth*depth)
	if v > historyLimit {
		v = historyLimit
	}
	h.values[index] = v
}
