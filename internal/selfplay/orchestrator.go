package selfplay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chiron-chess/chiron/internal/elo"
	"github.com/chiron-chess/chiron/internal/pgn"
	"github.com/chiron-chess/chiron/internal/storage"
	"github.com/chiron-chess/chiron/internal/trainer"
)

// Result captures one finished game.
type Result struct {
	WhitePlayer string
	BlackPlayer string
	Result      string
	Termination string
	PlyCount    int
	MovesSAN    []string
	Fens        []string
	StartFen    string
	EndFen      string
	DurationMs  int64
}

type resultRecord struct {
	Game        int      `json:"game"`
	White       string   `json:"white"`
	Black       string   `json:"black"`
	Result      string   `json:"result"`
	Termination string   `json:"termination"`
	PlyCount    int      `json:"ply_count"`
	DurationMs  int64    `json:"duration_ms"`
	StartFen    string   `json:"start_fen"`
	EndFen      string   `json:"end_fen"`
	Moves       []string `json:"moves"`
	Fens        []string `json:"fens,omitempty"`
}

// Orchestrator runs self-play games, logs them, and optionally feeds the
// positions back into network training.
type Orchestrator struct {
	configMu sync.Mutex
	config   Config

	rngMu sync.Mutex
	rng   *rand.Rand

	logMu       sync.Mutex
	resultsFile *os.File
	pgnFile     *os.File
	streamsOpen bool

	trainMu            sync.Mutex
	trainer            *trainer.Trainer
	parameters         *trainer.ParameterSet
	trainingBuffer     []trainer.Example
	teacherQueue       []string
	teacherEngine      teacherAnnotator
	trainingIteration  int
	historyPrefix      string
	historyExt         string
	positionsCollected int
	positionsTrained   int

	eloMu      sync.Mutex
	eloTracker *elo.Tracker

	store *storage.Storage
}

func NewOrchestrator(config Config) (*Orchestrator, error) {
	var seed = config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	var o = &Orchestrator{
		config:     config,
		rng:        rand.New(rand.NewSource(seed)),
		trainer:    trainer.NewTrainer(trainer.Config{LearningRate: config.Training.LearningRate, Regularisation: 0.0005}),
		eloTracker: elo.NewTracker(elo.DefaultInitialRating, elo.DefaultKFactor),
	}

	o.historyPrefix = "chiron-selfplay"
	o.historyExt = ".nnue"
	if config.Training.OutputPath != "" {
		var base = filepath.Base(config.Training.OutputPath)
		if ext := filepath.Ext(base); ext != "" {
			o.historyExt = ext
			o.historyPrefix = strings.TrimSuffix(base, ext)
		} else {
			o.historyPrefix = base
		}
	}

	if config.Training.Enabled {
		o.config.RecordFens = true
		o.parameters = trainer.NewParameterSet(config.Training.HiddenSize)
		if config.Training.OutputPath != "" {
			if _, err := os.Stat(config.Training.OutputPath); err == nil {
				if err = o.parameters.Load(config.Training.OutputPath); err != nil {
					return nil, fmt.Errorf("load training network: %w", err)
				}
				if o.config.White.NetworkPath == "" {
					o.config.White.NetworkPath = config.Training.OutputPath
				}
				if o.config.Black.NetworkPath == "" {
					o.config.Black.NetworkPath = config.Training.OutputPath
				}
			}
		}
		o.trainingIteration = o.detectHistoryIteration()
		o.positionsTrained = o.trainingIteration * max(1, config.Training.BatchSize)
		o.positionsCollected = o.positionsTrained
		if config.TeacherMode {
			o.teacherEngine = NewTeacherEngine(config.Teacher)
		}
	}

	if config.StorageDir != "" {
		var store, err = storage.Open(config.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("open run storage: %w", err)
		}
		o.store = store
	}
	return o, nil
}

// Close flushes log streams and the run archive.
func (o *Orchestrator) Close() error {
	o.logMu.Lock()
	if o.resultsFile != nil {
		o.resultsFile.Close()
		o.resultsFile = nil
	}
	if o.pgnFile != nil {
		o.pgnFile.Close()
		o.pgnFile = nil
	}
	o.streamsOpen = false
	o.logMu.Unlock()

	if o.store != nil {
		var err = o.store.Close()
		o.store = nil
		return err
	}
	return nil
}

func (o *Orchestrator) ensureStreams() error {
	o.logMu.Lock()
	defer o.logMu.Unlock()
	if o.streamsOpen {
		return nil
	}
	var flags = os.O_CREATE | os.O_WRONLY
	if o.config.AppendLogs {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	if o.config.CaptureResults && o.config.ResultsLog != "" {
		if err := os.MkdirAll(filepath.Dir(o.config.ResultsLog), 0o755); err != nil {
			return err
		}
		var f, err = os.OpenFile(o.config.ResultsLog, flags, 0o644)
		if err != nil {
			return err
		}
		o.resultsFile = f
	}
	if o.config.CapturePGN && o.config.PgnPath != "" {
		if err := os.MkdirAll(filepath.Dir(o.config.PgnPath), 0o755); err != nil {
			return err
		}
		var f, err = os.OpenFile(o.config.PgnPath, flags, 0o644)
		if err != nil {
			return err
		}
		o.pgnFile = f
	}
	o.streamsOpen = true
	return nil
}

// Run plays the configured number of games across the worker pool, then
// flushes any buffered training positions and reports final ratings.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.ensureStreams(); err != nil {
		return err
	}
	o.logVerbose("[SelfPlay] Starting %d game(s) with concurrency %d. Max ply %d.",
		o.config.Games, max(1, o.config.Concurrency), o.config.MaxPly)

	var g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(max(1, o.config.Concurrency))
	for game := 0; game < o.config.Games; game++ {
		g.Go(func() error {
			o.configMu.Lock()
			var white, black = o.config.White, o.config.Black
			var alternate = o.config.AlternateColors
			o.configMu.Unlock()
			if alternate && swapColors(game) {
				white, black = black, white
			}
			var _, err = o.PlayGame(gctx, game, white, black)
			return err
		})
	}
	var err = g.Wait()

	if trainErr := o.finalizeTraining(ctx); trainErr != nil && err == nil {
		err = trainErr
	}
	o.logRatingSnapshot()
	if o.store != nil {
		var book = &storage.EloBook{Players: o.snapshotRatings()}
		if saveErr := o.store.SaveEloBook(book); saveErr != nil && err == nil {
			err = saveErr
		}
	}
	return err
}

// swapColors reports whether the configured sides trade colors for this
// game. Games pair up round by round, so the default white opens games
// 0,3,4,7,... and answers as Black in between; over any even prefix both
// engines hold White equally often in both halves of each pair.
func swapColors(game int) bool {
	var pair, leg = game / 2, game % 2
	return (pair%2 == 0) == (leg == 1)
}

// PlayGame plays one game, then logs, trains and rates it. Abandoned
// games (termination "error") are logged for the record but never rated
// or fed to training.
func (o *Orchestrator) PlayGame(ctx context.Context, gameIndex int, white, black EngineConfig) (Result, error) {
	if err := o.ensureStreams(); err != nil {
		return Result{}, err
	}
	o.logVerbose("[Game %d] Start: %s (White, depth %d) vs %s (Black, depth %d)",
		gameIndex+1, white.Name, white.MaxDepth, black.Name, black.MaxDepth)

	var result, err = o.playSingleGame(ctx, gameIndex, white, black)
	if err != nil {
		return result, err
	}

	o.logResult(gameIndex, result)
	o.writePGN(gameIndex, result)
	if result.Termination != "error" {
		if err = o.handleTraining(ctx, result); err != nil {
			return result, err
		}
		o.recordElo(result)
	}
	if o.store != nil {
		var record = storage.GameRecord{
			Game:        gameIndex,
			White:       result.WhitePlayer,
			Black:       result.BlackPlayer,
			Result:      result.Result,
			Termination: result.Termination,
			PlyCount:    result.PlyCount,
			DurationMs:  result.DurationMs,
			StartFen:    result.StartFen,
			EndFen:      result.EndFen,
			Moves:       result.MovesSAN,
		}
		if err = o.store.RecordGame(&record); err != nil {
			return result, err
		}
	}

	o.logVerbose("[Game %d] Final: %s (%s) after %d ply in %.2fs",
		gameIndex+1, result.Result, result.Termination, result.PlyCount,
		float64(result.DurationMs)/1000)
	return result, nil
}

func (o *Orchestrator) logResult(gameIndex int, result Result) {
	if o.resultsFile == nil {
		return
	}
	var record = resultRecord{
		Game:        gameIndex + 1,
		White:       result.WhitePlayer,
		Black:       result.BlackPlayer,
		Result:      result.Result,
		Termination: result.Termination,
		PlyCount:    result.PlyCount,
		DurationMs:  result.DurationMs,
		StartFen:    result.StartFen,
		EndFen:      result.EndFen,
		Moves:       result.MovesSAN,
	}
	if record.Moves == nil {
		record.Moves = []string{}
	}
	if o.config.RecordFens {
		record.Fens = result.Fens
	}
	var data, err = json.Marshal(record)
	if err != nil {
		return
	}
	o.logMu.Lock()
	o.resultsFile.Write(append(data, '\n'))
	o.logMu.Unlock()
}

func (o *Orchestrator) writePGN(gameIndex int, result Result) {
	if o.pgnFile == nil {
		return
	}
	o.logMu.Lock()
	defer o.logMu.Unlock()
	pgn.WriteGame(o.pgnFile, pgn.Game{
		Event:       "Chiron Self-Play",
		Site:        "Local",
		Round:       gameIndex + 1,
		White:       result.WhitePlayer,
		Black:       result.BlackPlayer,
		Result:      result.Result,
		Termination: result.Termination,
		PlyCount:    result.PlyCount,
		StartFen:    result.StartFen,
		Moves:       result.MovesSAN,
	})
}

func (o *Orchestrator) recordElo(result Result) {
	var whiteScore float64
	switch result.Result {
	case "1-0":
		whiteScore = 1
	case "0-1":
		whiteScore = 0
	default:
		whiteScore = 0.5
	}
	o.eloMu.Lock()
	var update = o.eloTracker.RecordGame(result.WhitePlayer, result.BlackPlayer, whiteScore)
	o.eloMu.Unlock()
	o.logVerbose("[Elo] %s %.1f (%+.1f) vs %s %.1f (%+.1f)",
		update.White.Name, update.White.Rating, update.White.Delta,
		update.Black.Name, update.Black.Rating, update.Black.Delta)
}

func (o *Orchestrator) snapshotRatings() []elo.PlayerSummary {
	o.eloMu.Lock()
	defer o.eloMu.Unlock()
	return o.eloTracker.Snapshot()
}

func (o *Orchestrator) logRatingSnapshot() {
	var table = o.snapshotRatings()
	for _, p := range table {
		o.logVerbose("[Elo] %s: %.1f after %d game(s) (+%d =%d -%d)",
			p.Name, p.Rating, p.Games, p.Wins, p.Draws, p.Losses)
	}
}

func (o *Orchestrator) logVerbose(format string, args ...any) {
	if !o.config.Verbose {
		return
	}
	log.Printf(format, args...)
}
