package selfplay

import (
	"math"

	"github.com/chiron-chess/chiron/pkg/common"
	"github.com/chiron-chess/chiron/pkg/engine"
)

// selectMove picks the move to play. Early in the game it samples among
// near-equal root moves with a softmax over their scores so repeated
// pairings diverge; past the randomness window, and whenever a mate is on
// the board, it plays the best move.
func (o *Orchestrator) selectMove(search engine.SearchResult, ply int) common.Move {
	var r = o.config.Randomness
	if r.Temperature <= 0 || len(search.RootMoves) < 2 {
		return search.BestMove
	}
	if r.MaxPly > 0 && ply >= r.MaxPly {
		return search.BestMove
	}
	var best = search.RootMoves[0].Score
	if best >= engine.MateScoreThreshold || best <= -engine.MateScoreThreshold {
		return search.BestMove
	}

	var topMoves = r.TopMoves
	if topMoves <= 0 || topMoves > len(search.RootMoves) {
		topMoves = len(search.RootMoves)
	}
	var candidates []engine.RootMove
	for _, rm := range search.RootMoves[:topMoves] {
		if rm.Move == common.MoveEmpty {
			continue
		}
		if r.ScoreMargin > 0 && best-rm.Score > r.ScoreMargin {
			break
		}
		candidates = append(candidates, rm)
	}
	if len(candidates) < 2 {
		return search.BestMove
	}

	// softmax over score deltas, temperature in pawns
	var weights = make([]float64, len(candidates))
	var total = 0.0
	for i, rm := range candidates {
		weights[i] = math.Exp(float64(rm.Score-best) / (r.Temperature * 100))
		total += weights[i]
	}

	o.rngMu.Lock()
	var pick = o.rng.Float64() * total
	o.rngMu.Unlock()

	for i, w := range weights {
		pick -= w
		if pick <= 0 {
			return candidates[i].Move
		}
	}
	return candidates[len(candidates)-1].Move
}
