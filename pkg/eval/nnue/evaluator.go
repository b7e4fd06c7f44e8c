package nnue

import (
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/chiron-chess/chiron/pkg/common"
)

// Accumulator keeps the per-perspective sums of active feature weights.
// After a rebuild each neuron equals the sum over that color's pieces.
type Accumulator struct {
	White, Black []int32
}

func NewAccumulator(hiddenSize int) *Accumulator {
	return &Accumulator{
		White: make([]int32, hiddenSize),
		Black: make([]int32, hiddenSize),
	}
}

func (a *Accumulator) CopyFrom(src *Accumulator) {
	copy(a.White, src.White)
	copy(a.Black, src.Black)
}

// Evaluator owns the network slot. The first caller loads the network
// lazily; a failed load falls back to the default material weights.
// Rebinding the path drops the cache so the next call reloads.
type Evaluator struct {
	mu   sync.Mutex
	path string
	net  atomic.Pointer[Network]
}

func NewEvaluator(path string) *Evaluator {
	return &Evaluator{path: path}
}

func (e *Evaluator) SetNetworkPath(path string) {
	e.mu.Lock()
	e.path = path
	e.net.Store(nil)
	e.mu.Unlock()
}

func (e *Evaluator) Network() *Network {
	if n := e.net.Load(); n != nil {
		return n
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := e.net.Load(); n != nil {
		return n
	}
	var n *Network
	if e.path != "" {
		var loaded, err = LoadNetworkFile(e.path)
		if err != nil {
			log.Println("nnue fallback to default weights:", err)
			n = NewDefaultNetwork(DefaultHiddenSize)
		} else {
			n = loaded
		}
	} else {
		n = NewDefaultNetwork(DefaultHiddenSize)
	}
	e.net.Store(n)
	return n
}

func (e *Evaluator) HiddenSize() int {
	return e.Network().HiddenSize
}

func (e *Evaluator) applyFeature(acc *Accumulator, piece int, side bool, sq, sign int) {
	var net = e.Network()
	var h = net.HiddenSize
	var row = net.InputWeights[FeatureIndex(piece, side, sq)*h:]
	var dst []int32
	if side {
		dst = acc.White
	} else {
		dst = acc.Black
	}
	if sign > 0 {
		for n := 0; n < h; n++ {
			dst[n] += row[n]
		}
	} else {
		for n := 0; n < h; n++ {
			dst[n] -= row[n]
		}
	}
}

// BuildAccumulator recomputes both perspectives from scratch.
func (e *Evaluator) BuildAccumulator(p *common.Position, acc *Accumulator) {
	for i := range acc.White {
		acc.White[i] = 0
		acc.Black[i] = 0
	}
	for _, side := range [2]bool{true, false} {
		var own = p.PiecesByColor(side)
		for bb := own; bb != 0; bb &= bb - 1 {
			var sq = common.FirstOne(bb)
			e.applyFeature(acc, p.WhatPiece(sq), side, sq, +1)
		}
	}
}

// UpdateAccumulator derives the accumulator after move from base. p must
// still be the position the move is made from.
func (e *Evaluator) UpdateAccumulator(p *common.Position, move common.Move, base, dest *Accumulator) {
	dest.CopyFrom(base)

	var us = p.WhiteMove
	var from = move.From()
	var to = move.To()
	var movingPiece = move.MovingPiece()

	e.applyFeature(dest, movingPiece, us, from, -1)

	var placed = movingPiece
	if move.IsPromotion() {
		placed = move.Promotion()
	}
	e.applyFeature(dest, placed, us, to, +1)

	if move.IsCapture() {
		var victimSq = to
		if p.IsEnPassant(move) {
			victimSq = to + let(us, -8, 8)
		}
		e.applyFeature(dest, move.CapturedPiece(), !us, victimSq, -1)
	}

	if move.IsCastle() {
		var rookFrom, rookTo int
		if common.File(to) == common.FileG {
			rookFrom = common.MakeSquare(common.FileH, common.Rank(to))
			rookTo = common.MakeSquare(common.FileF, common.Rank(to))
		} else {
			rookFrom = common.MakeSquare(common.FileA, common.Rank(to))
			rookTo = common.MakeSquare(common.FileD, common.Rank(to))
		}
		e.applyFeature(dest, common.Rook, us, rookFrom, -1)
		e.applyFeature(dest, common.Rook, us, rookTo, +1)
	}
}

// Evaluate runs the forward pass: tanh over scaled pre-activations, dot
// with output weights, scalar bias and output scale. Result is centipawns
// from the side to move.
func (e *Evaluator) Evaluate(p *common.Position, acc *Accumulator) int {
	var net = e.Network()
	var raw = float64(net.Bias)
	for n := 0; n < net.HiddenSize; n++ {
		var pre = acc.White[n] - acc.Black[n] + net.HiddenBiases[n]
		var activation = math.Tanh(float64(pre)/ActivationScale) * ActivationScale
		raw += activation * float64(net.OutputWeights[n])
	}
	var score = int(math.Round(raw * float64(net.Scale)))
	if score > MaxEvaluation {
		score = MaxEvaluation
	} else if score < -MaxEvaluation {
		score = -MaxEvaluation
	}
	if !p.WhiteMove {
		score = -score
	}
	return score
}

// EvaluatePosition builds a fresh accumulator and evaluates. Convenience
// path for training and tests; the search keeps per-ply accumulators.
func (e *Evaluator) EvaluatePosition(p *common.Position) int {
	var acc = NewAccumulator(e.HiddenSize())
	e.BuildAccumulator(p, acc)
	return e.Evaluate(p, acc)
}

// EvaluateNetwork runs the forward pass for an arbitrary network without
// an evaluator slot. The trainer uses it to probe in-progress parameters.
func EvaluateNetwork(net *Network, p *common.Position) int {
	var h = net.HiddenSize
	var acc = NewAccumulator(h)
	for _, side := range [2]bool{true, false} {
		var dst = acc.White
		if !side {
			dst = acc.Black
		}
		for bb := p.PiecesByColor(side); bb != 0; bb &= bb - 1 {
			var sq = common.FirstOne(bb)
			var row = net.InputWeights[FeatureIndex(p.WhatPiece(sq), side, sq)*h:]
			for n := 0; n < h; n++ {
				dst[n] += row[n]
			}
		}
	}
	var raw = float64(net.Bias)
	for n := 0; n < h; n++ {
		var pre = acc.White[n] - acc.Black[n] + net.HiddenBiases[n]
		var activation = math.Tanh(float64(pre)/ActivationScale) * ActivationScale
		raw += activation * float64(net.OutputWeights[n])
	}
	var score = int(math.Round(raw * float64(net.Scale)))
	if score > MaxEvaluation {
		score = MaxEvaluation
	} else if score < -MaxEvaluation {
		score = -MaxEvaluation
	}
	if !p.WhiteMove {
		score = -score
	}
	return score
}

func let(ok bool, yes, no int) int {
	if ok {
		return yes
	}
	return no
}
