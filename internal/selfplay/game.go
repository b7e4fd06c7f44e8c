package selfplay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chiron-chess/chiron/pkg/common"
	"github.com/chiron-chess/chiron/pkg/engine"
	"github.com/chiron-chess/chiron/pkg/eval/nnue"
)

func newEngine(config EngineConfig) *engine.Engine {
	var e = engine.NewEngine(nnue.NewEvaluator(config.NetworkPath))
	if config.Threads > 0 {
		e.Threads = config.Threads
	}
	if config.TableSize > 0 {
		e.TableSize = config.TableSize
	}
	return e
}

func (o *Orchestrator) playSingleGame(ctx context.Context, gameIndex int, white, black EngineConfig) (Result, error) {
	var pos, err = common.NewPositionFromFEN(common.InitialPositionFen)
	if err != nil {
		return Result{}, err
	}

	var result = Result{
		WhitePlayer: white.Name,
		BlackPlayer: black.Name,
		StartFen:    pos.String(),
	}

	var whiteEngine = newEngine(white)
	var blackEngine = newEngine(black)
	whiteEngine.NewGame()
	blackEngine.NewGame()

	var startTime = time.Now()
	var repetition = map[uint64]int{pos.Key: 1}
	var gameKeys = []uint64{pos.Key}
	var ply = 0

	for {
		if ctx.Err() != nil {
			result.Result = "*"
			result.Termination = "error"
			break
		}
		if o.config.MaxPly > 0 && ply >= o.config.MaxPly {
			result.Result = "1/2-1/2"
			result.Termination = "max-ply"
			break
		}

		var cfg = white
		var eng = whiteEngine
		if !pos.WhiteMove {
			cfg = black
			eng = blackEngine
		}

		var search = eng.Search(ctx, pos, engine.SearchLimits{MaxDepth: cfg.MaxDepth}, gameKeys)
		if search.BestMove == common.MoveEmpty {
			if pos.IsCheck() {
				if pos.WhiteMove {
					result.Result = "0-1"
				} else {
					result.Result = "1-0"
				}
				result.Termination = "checkmate"
			} else {
				result.Result = "1/2-1/2"
				result.Termination = "stalemate"
			}
			break
		}

		var move = o.selectMove(search, ply)
		var legal = common.GenerateLegalMoves(&pos)
		var san = common.MoveToSAN(&pos, legal, move)
		o.logMove(gameIndex, &pos, cfg, ply, san, search)

		var u common.UndoState
		if !pos.MakeMove(move, &u) {
			result.Result = "*"
			result.Termination = "error"
			break
		}
		result.MovesSAN = append(result.MovesSAN, san)
		ply++

		repetition[pos.Key]++
		gameKeys = append(gameKeys, pos.Key)
		if o.config.RecordFens {
			result.Fens = append(result.Fens, pos.String())
		}

		if pos.Rule50 >= 100 {
			result.Result = "1/2-1/2"
			result.Termination = "fifty-move-rule"
			break
		}
		if repetition[pos.Key] >= 3 {
			result.Result = "1/2-1/2"
			result.Termination = "threefold-repetition"
			break
		}
		if insufficientMaterial(&pos) {
			result.Result = "1/2-1/2"
			result.Termination = "insufficient-material"
			break
		}
	}

	result.EndFen = pos.String()
	result.PlyCount = len(result.MovesSAN)
	result.DurationMs = time.Since(startTime).Milliseconds()
	return result, nil
}

// insufficientMaterial recognizes the dead draws the arbiter would call:
// bare kings, king and one minor, and same-colored single bishops.
func insufficientMaterial(p *common.Position) bool {
	if p.Pawns != 0 || p.Rooks != 0 || p.Queens != 0 {
		return false
	}
	var whiteMinors = common.PopCount((p.Knights | p.Bishops) & p.White)
	var blackMinors = common.PopCount((p.Knights | p.Bishops) & p.Black)

	if whiteMinors == 0 && blackMinors == 0 {
		return true
	}
	if whiteMinors <= 1 && blackMinors == 0 {
		return true
	}
	if blackMinors <= 1 && whiteMinors == 0 {
		return true
	}
	if whiteMinors == 1 && blackMinors == 1 &&
		p.Bishops&p.White != 0 && p.Bishops&p.Black != 0 {
		var whiteSq = common.FirstOne(p.Bishops & p.White)
		var blackSq = common.FirstOne(p.Bishops & p.Black)
		return common.IsDarkSquare(whiteSq) == common.IsDarkSquare(blackSq)
	}
	return false
}

func (o *Orchestrator) logMove(gameIndex int, pos *common.Position, cfg EngineConfig,
	ply int, san string, search engine.SearchResult) {
	if !o.config.Verbose {
		return
	}
	var moveNumber = ply/2 + 1
	var dots = ". "
	if !pos.WhiteMove {
		dots = "... "
	}
	var line = fmt.Sprintf("[Game %d] %d%s%s plays %s | eval %s | depth %d",
		gameIndex+1, moveNumber, dots, cfg.Name, san,
		formatEvaluation(search.Score, pos.WhiteMove), search.Depth)
	if search.SelDepth > 0 {
		line += fmt.Sprintf(" (sel %d)", search.SelDepth)
	}
	line += fmt.Sprintf(" | nodes %d", search.Nodes)
	if search.TimeMs > 0 {
		line += fmt.Sprintf(" | time %dms | nps %d",
			search.TimeMs, search.Nodes*1000/search.TimeMs)
	}
	if pv := formatPV(*pos, search.MainLine); pv != "" {
		line += " | pv " + pv
	}
	o.logVerbose("%s", line)
}

func formatEvaluation(score int, whiteToMove bool) string {
	if score >= engine.MateScoreThreshold || score <= -engine.MateScoreThreshold {
		var mateMoves = (engine.MateValue - abs(score) + 1) / 2
		if score < 0 {
			return fmt.Sprintf("-M%d", mateMoves)
		}
		return fmt.Sprintf("+M%d", mateMoves)
	}
	var side = "White"
	if !whiteToMove {
		side = "Black"
	}
	return fmt.Sprintf("%+.2f (%d cp for %s)", float64(score)/100, score, side)
}

func formatPV(pos common.Position, pv []common.Move) string {
	var parts []string
	var u common.UndoState
	for _, move := range pv {
		var legal = common.GenerateLegalMoves(&pos)
		parts = append(parts, common.MoveToSAN(&pos, legal, move))
		if !pos.MakeMove(move, &u) {
			break
		}
	}
	return strings.Join(parts, " ")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
