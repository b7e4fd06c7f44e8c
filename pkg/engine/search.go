package engine

import (
	"github.com/chiron-chess/chiron/pkg/common"
)

func (e *Engine) negamax(sc *searchContext, depth, alpha, beta int, allowNull bool, ply int) int {
	if e.shouldStop() {
		return 0
	}
	e.nodes.Add(1)
	e.updateSelDepth(ply)

	var p = &sc.position

	if ply >= stackSize-2 {
		return e.Evaluator.Evaluate(p, sc.stack[ply].accumulator)
	}

	if p.Rule50 >= 100 {
		return 0
	}
	if countKey(sc.repetitions, p.Key) >= 3 {
		return 0
	}

	if depth <= 0 {
		return e.quiescence(sc, alpha, beta, ply)
	}

	var ttMove = common.MoveEmpty
	if entryDepth, entryScore, entryMove, bound, ok := e.transTable.Probe(p.Key, ply); ok {
		ttMove = entryMove
		if entryDepth >= depth {
			switch bound {
			case boundExact:
				return entryScore
			case boundUpper:
				if entryScore <= alpha {
					return entryScore
				}
			case boundLower:
				if entryScore >= beta {
					return entryScore
				}
			}
		}
	}

	var inCheck = p.IsCheck()
	var staticEval = e.Evaluator.Evaluate(p, sc.stack[ply].accumulator)
	sc.stack[ply].staticEval = staticEval

	if !inCheck && allowNull && depth >= 3 && staticEval >= beta {
		var u common.UndoState
		sc.stack[ply+1].accumulator.CopyFrom(sc.stack[ply].accumulator)
		p.MakeNullMove(&u)
		sc.repetitions = append(sc.repetitions, p.Key)
		var score = -e.negamax(sc, depth-1-2, -beta, -beta+1, false, ply+1)
		sc.repetitions = sc.repetitions[:len(sc.repetitions)-1]
		p.UnmakeNullMove(&u)
		if e.stopped.Load() {
			return 0
		}
		if score >= beta {
			return beta
		}
	}

	var buffer [common.MaxMoves]common.Move
	var moves = common.GenerateMoves(buffer[:], p)
	var ordered [common.MaxMoves]common.OrderedMove
	for i, m := range moves {
		ordered[i] = common.OrderedMove{Move: m, Key: moveOrderKey(sc, m, ttMove, ply)}
	}
	sortOrderedMoves(ordered[:len(moves)])

	var bestScore = -Infinity
	var bestMove = common.MoveEmpty
	var origAlpha = alpha
	var legalMoves = 0
	var u common.UndoState

	for i := 0; i < len(moves); i++ {
		var move = ordered[i].Move
		e.Evaluator.UpdateAccumulator(p, move, sc.stack[ply].accumulator, sc.stack[ply+1].accumulator)
		if !p.MakeMove(move, &u) {
			continue
		}
		sc.repetitions = append(sc.repetitions, p.Key)
		var givesCheck = p.IsCheck()

		var score int
		if !move.IsCapture() && !move.IsPromotion() &&
			!givesCheck && !inCheck &&
			depth >= 3 && legalMoves >= 3 {
			var reduction = 1
			if legalMoves > 6 {
				reduction = 2
			}
			score = -e.negamax(sc, depth-1-reduction, -(alpha + 1), -alpha, true, ply+1)
			if score > alpha {
				score = -e.negamax(sc, depth-1, -beta, -alpha, true, ply+1)
			}
		} else {
			score = -e.negamax(sc, depth-1, -beta, -alpha, true, ply+1)
		}

		sc.repetitions = sc.repetitions[:len(sc.repetitions)-1]
		p.UnmakeMove(move, &u)
		if e.stopped.Load() {
			return 0
		}
		legalMoves++

		if score > bestScore {
			bestScore = score
			bestMove = move
		}
		if score > alpha {
			alpha = score
		}
		if alpha >= beta {
			if !move.IsCapture() && !move.IsPromotion() {
				if sc.stack[ply].killer1 != move {
					sc.stack[ply].killer2 = sc.stack[ply].killer1
					sc.stack[ply].killer1 = move
				}
				sc.history.Update(p.WhiteMove, move, depth)
			}
			break
		}
	}

	if legalMoves == 0 {
		if inCheck {
			return -MateValue + ply
		}
		return 0
	}

	var bound = boundExact
	if bestScore <= origAlpha {
		bound = boundUpper
	} else if bestScore >= beta {
		bound = boundLower
	}
	e.transTable.Store(p.Key, depth, bestScore, bestMove, bound, ply)
	return bestScore
}

func (e *Engine) quiescence(sc *searchContext, alpha, beta, ply int) int {
	if e.shouldStop() {
		return 0
	}
	e.nodes.Add(1)
	e.updateSelDepth(ply)

	var p = &sc.position

	if ply >= stackSize-2 {
		return e.Evaluator.Evaluate(p, sc.stack[ply].accumulator)
	}

	// check evasions run through the full search at depth one
	if p.IsCheck() {
		return e.negamax(sc, 1, alpha, beta, false, ply)
	}

	var standPat = e.Evaluator.Evaluate(p, sc.stack[ply].accumulator)
	if standPat >= beta {
		return beta
	}
	if standPat > alpha {
		alpha = standPat
	}

	var buffer [common.MaxMoves]common.Move
	var moves = common.GenerateCaptures(buffer[:], p)
	var ordered [common.MaxMoves]common.OrderedMove
	for i, m := range moves {
		ordered[i] = common.OrderedMove{Move: m, Key: mvvlva(m)}
	}
	sortOrderedMoves(ordered[:len(moves)])

	var u common.UndoState
	for i := 0; i < len(moves); i++ {
		var move = ordered[i].Move
		e.Evaluator.UpdateAccumulator(p, move, sc.stack[ply].accumulator, sc.stack[ply+1].accumulator)
		if !p.MakeMove(move, &u) {
			continue
		}
		var score = -e.quiescence(sc, -beta, -alpha, ply+1)
		p.UnmakeMove(move, &u)
		if e.stopped.Load() {
			return 0
		}
		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}
	return alpha
}

func (e *Engine) updateSelDepth(ply int) {
	for {
		var current = e.seldepth.Load()
		if int32(ply) <= current {
			return
		}
		if e.seldepth.CompareAndSwap(current, int32(ply)) {
			return
		}
	}
}

func countKey(keys []uint64, key uint64) int {
	var count = 0
	for _, k := range keys {
		if k == key {
			count++
		}
	}
	return count
}

var pieceOrderValues = [common.King + 1]int{
	common.Pawn:   1,
	common.Knight: 2,
	common.Bishop: 3,
	common.Rook:   4,
	common.Queen:  5,
	common.King:   6,
}

func mvvlva(m common.Move) int {
	var key = pieceOrderValues[m.CapturedPiece()]*8 - pieceOrderValues[m.MovingPiece()]
	if m.IsPromotion() {
		key += pieceOrderValues[m.Promotion()] * 8
	}
	return key
}

func moveOrderKey(sc *searchContext, m, ttMove common.Move, ply int) int {
	switch {
	case m == ttMove:
		return 1 << 30
	case m.IsCapture() || m.IsPromotion():
		return 1<<25 + mvvlva(m)
	case m == sc.stack[ply].killer1:
		return 1 << 24
	case m == sc.stack[ply].killer2:
		return 1<<24 - 1
	}
	return sc.history.Score(sc.position.WhiteMove, m)
}

func sortOrderedMoves(moves []common.OrderedMove) {
	for i := 1; i < len(moves); i++ {
		var item = moves[i]
		var j = i
		for j > 0 && moves[j-1].Key < item.Key {
			moves[j] = moves[j-1]
			j--
		}
		moves[j] = item
	}
}
