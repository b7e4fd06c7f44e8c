package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chiron-chess/chiron/pkg/common"
	"github.com/chiron-chess/chiron/pkg/eval/nnue"
)

const (
	Infinity  = 32000
	MateValue = 32000

	// Scores past this are treated as forced mates by the driver.
	MateScoreThreshold = MateValue - 512

	stackSize = 128
	valueWin  = MateValue - stackSize
	valueLoss = -valueWin

	aspirationWindow = 18
)

type SearchLimits struct {
	MaxDepth    int
	NodeLimit   int64
	MoveTimeMs  int // -1 when unset
	WhiteTimeMs int
	BlackTimeMs int
	WhiteIncMs  int
	BlackIncMs  int
	MovesToGo   int
	Infinite    bool
	Ponder      bool
}

type RootMove struct {
	Move  common.Move
	Score int
}

type SearchResult struct {
	Depth    int
	SelDepth int
	Score    int
	BestMove common.Move
	MainLine []common.Move
	Nodes    int64
	TimeMs   int64

	// RootMoves holds every legal root move with its score from the last
	// completed iteration, sorted by score descending. Moves that never
	// raised the shared alpha carry an upper bound.
	RootMoves []RootMove
}

// TimeManager turns clock state into a per-move budget in milliseconds.
type TimeManager interface {
	AllocateTimeMs(timeLeftMs, incrementMs, moveNumber, movesToGo int) int
}

type Engine struct {
	Threads     int
	TableSize   int
	Evaluator   *nnue.Evaluator
	TimeManager TimeManager
	Progress    func(SearchResult)

	transTable *transTable
	contexts   []*searchContext

	startTime time.Time
	budgetMs  int64
	nodeLimit int64
	ctx       context.Context
	nodes     atomic.Int64
	seldepth  atomic.Int32
	stopped   atomic.Bool
}

type searchContext struct {
	engine      *Engine
	position    common.Position
	stack       [stackSize]searchFrame
	repetitions []uint64
	history     historyTable
}

type searchFrame struct {
	accumulator *nnue.Accumulator
	staticEval  int
	killer1     common.Move
	killer2     common.Move
}

func NewEngine(evaluator *nnue.Evaluator) *Engine {
	return &Engine{
		Threads:     1,
		TableSize:   1 << 20,
		Evaluator:   evaluator,
		TimeManager: SimpleTimeManager{},
	}
}

// NewGame drops all cached search state.
func (e *Engine) NewGame() {
	if e.transTable != nil {
		e.transTable.Clear()
	}
	for _, sc := range e.contexts {
		sc.history.Clear()
	}
}

func (e *Engine) prepare() {
	if e.Threads < 1 {
		e.Threads = 1
	}
	if e.transTable == nil {
		e.transTable = newTransTable(e.TableSize)
	} else {
		e.transTable.Resize(e.TableSize)
	}
	if len(e.contexts) != e.Threads {
		e.contexts = make([]*searchContext, e.Threads)
	}
	var h = e.Evaluator.HiddenSize()
	for i := range e.contexts {
		if e.contexts[i] == nil {
			e.contexts[i] = &searchContext{engine: e}
		}
		var sc = e.contexts[i]
		for ply := range sc.stack {
			if sc.stack[ply].accumulator == nil ||
				len(sc.stack[ply].accumulator.White) != h {
				sc.stack[ply].accumulator = nnue.NewAccumulator(h)
			}
			sc.stack[ply].killer1 = common.MoveEmpty
			sc.stack[ply].killer2 = common.MoveEmpty
		}
	}
}

// Search runs iterative deepening from pos. repetitionKeys carries the
// zobrist keys of the game line including pos itself; ctx cancellation,
// the node limit and the time budget all stop the search, which then
// returns the result of the last completed iteration.
func (e *Engine) Search(ctx context.Context, pos common.Position,
	limits SearchLimits, repetitionKeys []uint64) SearchResult {

	e.prepare()
	e.startTime = time.Now()
	e.ctx = ctx
	e.nodes.Store(0)
	e.seldepth.Store(0)
	e.stopped.Store(false)
	e.nodeLimit = limits.NodeLimit
	e.budgetMs = e.allocateBudget(&pos, limits)
	e.transTable.NextGeneration()

	for _, sc := range e.contexts {
		sc.position = pos
		e.Evaluator.BuildAccumulator(&sc.position, sc.stack[0].accumulator)
		sc.repetitions = sc.repetitions[:0]
		sc.repetitions = append(sc.repetitions, repetitionKeys...)
		if len(repetitionKeys) == 0 || repetitionKeys[len(repetitionKeys)-1] != pos.Key {
			sc.repetitions = append(sc.repetitions, pos.Key)
		}
	}

	var rootMoves = common.GenerateLegalMoves(&pos)
	if len(rootMoves) == 0 {
		var score = 0
		if pos.IsCheck() {
			score = -MateValue
		}
		return SearchResult{Score: score, BestMove: common.MoveEmpty}
	}

	var maxDepth = limits.MaxDepth
	if maxDepth <= 0 || maxDepth >= stackSize {
		maxDepth = stackSize - 1
	}

	var result SearchResult
	var prevScore = 0

	for depth := 1; depth <= maxDepth; depth++ {
		var iteration, ok = e.searchRootAspiration(depth, prevScore, rootMoves)
		if !ok {
			break
		}
		prevScore = iteration.Score
		result = iteration
		result.SelDepth = int(e.seldepth.Load())
		result.Nodes = e.nodes.Load()
		result.TimeMs = time.Since(e.startTime).Milliseconds()
		result.MainLine = e.extractPV(pos, result.BestMove, depth)
		if e.Progress != nil {
			e.Progress(result)
		}
		if result.Score >= MateScoreThreshold || result.Score <= -MateScoreThreshold {
			break
		}
		if e.nodeLimit > 0 && e.nodes.Load() >= e.nodeLimit {
			break
		}
	}

	if result.BestMove == common.MoveEmpty {
		// depth 1 never completed; fall back to the first legal move
		result.BestMove = rootMoves[0]
		result.Depth = 0
	}
	return result
}

func (e *Engine) allocateBudget(pos *common.Position, limits SearchLimits) int64 {
	if limits.Infinite {
		return 0
	}
	if limits.MoveTimeMs >= 0 && limits.MoveTimeMs != 0 {
		return int64(limits.MoveTimeMs)
	}
	var timeLeft, increment int
	if pos.WhiteMove {
		timeLeft, increment = limits.WhiteTimeMs, limits.WhiteIncMs
	} else {
		timeLeft, increment = limits.BlackTimeMs, limits.BlackIncMs
	}
	if timeLeft <= 0 && increment <= 0 {
		return 0
	}
	if e.TimeManager == nil {
		return 0
	}
	return int64(e.TimeManager.AllocateTimeMs(timeLeft, increment, pos.FullMove, limits.MovesToGo))
}

func (e *Engine) shouldStop() bool {
	if e.stopped.Load() {
		return true
	}
	if e.ctx != nil && e.ctx.Err() != nil {
		e.stopped.Store(true)
		return true
	}
	if e.nodeLimit > 0 && e.nodes.Load() >= e.nodeLimit {
		e.stopped.Store(true)
		return true
	}
	if e.budgetMs > 0 && time.Since(e.startTime).Milliseconds() >= e.budgetMs {
		e.stopped.Store(true)
		return true
	}
	return false
}

// searchRootAspiration re-searches depth with a widening window until the
// score fits inside it. Returns ok=false when the stop fired before the
// final window completed.
func (e *Engine) searchRootAspiration(depth, prevScore int, rootMoves []common.Move) (SearchResult, bool) {
	var alpha, beta = -Infinity, Infinity
	var window = aspirationWindow
	if depth > 1 {
		alpha = common.Max(-Infinity, prevScore-window)
		beta = common.Min(Infinity, prevScore+window)
	}

	for {
		var result, ok = e.searchRoot(depth, alpha, beta, rootMoves)
		if !ok {
			return SearchResult{}, false
		}
		if result.Score <= alpha {
			window *= 2
			if window > Infinity/2 {
				alpha = -Infinity
			} else {
				alpha = common.Max(-Infinity, result.Score-window)
			}
			continue
		}
		if result.Score >= beta {
			window *= 2
			if window > Infinity/2 {
				beta = Infinity
			} else {
				beta = common.Min(Infinity, result.Score+window)
			}
			continue
		}
		return result, true
	}
}

// extractPV walks the table from the root, stopping on an empty slot, an
// illegal hash move or a repeated key.
func (e *Engine) extractPV(pos common.Position, bestMove common.Move, depth int) []common.Move {
	var pv []common.Move
	var u common.UndoState
	var seen = make(map[uint64]bool)

	if bestMove == common.MoveEmpty {
		return nil
	}
	if !pos.MakeMove(bestMove, &u) {
		return nil
	}
	pv = append(pv, bestMove)
	seen[pos.Key] = true

	for len(pv) < depth {
		var _, _, move, _, ok = e.transTable.Probe(pos.Key, len(pv))
		if !ok || move == common.MoveEmpty {
			break
		}
		var legal = false
		for _, m := range common.GenerateLegalMoves(&pos) {
			if m == move {
				legal = true
				break
			}
		}
		if !legal {
			break
		}
		var u2 common.UndoState
		if !pos.MakeMove(move, &u2) {
			break
		}
		if seen[pos.Key] {
			pv = append(pv, move)
			break
		}
		seen[pos.Key] = true
		pv = append(pv, move)
	}
	return pv
}

// searchRoot searches one depth. The first move runs on the calling thread
// to seed alpha, the rest fan out to worker contexts through an atomic
// index with a shared alpha and cutoff flag.
func (e *Engine) searchRoot(depth, alpha, beta int, rootMoves []common.Move) (SearchResult, bool) {
	var sc0 = e.contexts[0]
	var ordered = e.orderRootMoves(sc0, rootMoves)

	var scores = make([]int, len(ordered))
	for i := range scores {
		scores[i] = -Infinity
	}

	var u common.UndoState
	var first = ordered[0]
	e.Evaluator.UpdateAccumulator(&sc0.position, first, sc0.stack[0].accumulator, sc0.stack[1].accumulator)
	if !sc0.position.MakeMove(first, &u) {
		return SearchResult{}, false
	}
	sc0.repetitions = append(sc0.repetitions, sc0.position.Key)
	var firstScore = -e.negamax(sc0, depth-1, -beta, -alpha, true, 1)
	sc0.repetitions = sc0.repetitions[:len(sc0.repetitions)-1]
	sc0.position.UnmakeMove(first, &u)

	if e.stopped.Load() {
		return SearchResult{}, false
	}

	scores[0] = firstScore
	var best = firstScore
	var bestMove = first
	var origAlpha = alpha
	if firstScore > alpha {
		alpha = firstScore
	}

	var sharedAlpha atomic.Int32
	sharedAlpha.Store(int32(alpha))
	var nextIndex atomic.Int32
	nextIndex.Store(1)
	var cutoff atomic.Bool
	if firstScore >= beta {
		cutoff.Store(true)
	}
	var mu sync.Mutex

	var worker = func(sc *searchContext) {
		var wu common.UndoState
		for {
			if cutoff.Load() || e.stopped.Load() {
				return
			}
			var i = int(nextIndex.Add(1)) - 1
			if i >= len(ordered) {
				return
			}
			var move = ordered[i]
			var a = common.Max(origAlpha, int(sharedAlpha.Load()))
			e.Evaluator.UpdateAccumulator(&sc.position, move, sc.stack[0].accumulator, sc.stack[1].accumulator)
			if !sc.position.MakeMove(move, &wu) {
				continue
			}
			sc.repetitions = append(sc.repetitions, sc.position.Key)
			var score = -e.negamax(sc, depth-1, -beta, -a, true, 1)
			sc.repetitions = sc.repetitions[:len(sc.repetitions)-1]
			sc.position.UnmakeMove(move, &wu)
			if e.stopped.Load() {
				return
			}

			mu.Lock()
			scores[i] = score
			if score > best {
				best = score
				bestMove = move
				if score > int(sharedAlpha.Load()) {
					sharedAlpha.Store(int32(score))
				}
				if score >= beta {
					cutoff.Store(true)
				}
			}
			mu.Unlock()
		}
	}

	var wg sync.WaitGroup
	for i := 1; i < len(e.contexts); i++ {
		wg.Add(1)
		go func(sc *searchContext) {
			defer wg.Done()
			worker(sc)
		}(e.contexts[i])
	}
	worker(sc0)
	wg.Wait()

	if e.stopped.Load() {
		return SearchResult{}, false
	}

	var bound = boundExact
	if best <= origAlpha {
		bound = boundUpper
	} else if best >= beta {
		bound = boundLower
	}
	e.transTable.Store(sc0.position.Key, depth, best, bestMove, bound, 0)

	var result = SearchResult{
		Depth:    depth,
		Score:    best,
		BestMove: bestMove,
	}
	result.RootMoves = make([]RootMove, len(ordered))
	for i, m := range ordered {
		result.RootMoves[i] = RootMove{Move: m, Score: scores[i]}
	}
	sortRootMoves(result.RootMoves)
	return result, true
}

func sortRootMoves(moves []RootMove) {
	for i := 1; i < len(moves); i++ {
		var item = moves[i]
		var j = i
		for j > 0 && moves[j-1].Score < item.Score {
			moves[j] = moves[j-1]
			j--
		}
		moves[j] = item
	}
}

func (e *Engine) orderRootMoves(sc *searchContext, rootMoves []common.Move) []common.Move {
	var ttMove common.Move
	if _, _, move, _, ok := e.transTable.Probe(sc.position.Key, 0); ok {
		ttMove = move
	}
	var ordered = make([]common.OrderedMove, len(rootMoves))
	for i, m := range rootMoves {
		ordered[i] = common.OrderedMove{Move: m, Key: moveOrderKey(sc, m, ttMove, 0)}
	}
	sortOrderedMoves(ordered)
	var result = make([]common.Move, len(ordered))
	for i := range ordered {
		result[i] = ordered[i].Move
	}
	return result
}
