package selfplay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/chiron-chess/chiron/internal/storage"
	"github.com/chiron-chess/chiron/pkg/common"
	"github.com/chiron-chess/chiron/pkg/engine"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	var dir = t.TempDir()
	var config = DefaultConfig()
	config.Games = 2
	config.Concurrency = 2
	config.MaxPly = 40
	config.Seed = 1
	config.White.Name = "white-engine"
	config.White.MaxDepth = 2
	config.White.TableSize = 1 << 14
	config.Black.Name = "black-engine"
	config.Black.MaxDepth = 2
	config.Black.TableSize = 1 << 14
	config.ResultsLog = filepath.Join(dir, "results.jsonl")
	config.PgnPath = filepath.Join(dir, "games.pgn")
	return config
}

var validTerminations = map[string]bool{
	"checkmate":             true,
	"stalemate":             true,
	"fifty-move-rule":       true,
	"threefold-repetition":  true,
	"insufficient-material": true,
	"max-ply":               true,
}

func TestRunProducesLogs(t *testing.T) {
	var config = testConfig(t)
	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	if err = o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var f, err2 = os.Open(config.ResultsLog)
	if err2 != nil {
		t.Fatal(err2)
	}
	defer f.Close()
	var scanner = bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var games = 0
	for scanner.Scan() {
		var record resultRecord
		if err = json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatal("bad result line:", err)
		}
		if !validTerminations[record.Termination] {
			t.Error("unexpected termination:", record.Termination)
		}
		if record.PlyCount != len(record.Moves) {
			t.Error("ply count mismatch:", record.PlyCount, len(record.Moves))
		}
		if record.StartFen != common.InitialPositionFen {
			t.Error("start fen:", record.StartFen)
		}
		games++
	}
	if games != 2 {
		t.Fatal("expected 2 result lines, got", games)
	}

	var pgnData, err3 = os.ReadFile(config.PgnPath)
	if err3 != nil {
		t.Fatal(err3)
	}
	if len(pgnData) == 0 {
		t.Fatal("empty pgn log")
	}

	var table = o.snapshotRatings()
	if len(table) != 2 {
		t.Fatal("elo table players:", len(table))
	}
	for _, p := range table {
		if p.Games != 2 {
			t.Error(p.Name, "games:", p.Games)
		}
	}
}

func TestRunPersistsToStorage(t *testing.T) {
	var config = testConfig(t)
	config.Games = 1
	config.Concurrency = 1
	config.StorageDir = filepath.Join(t.TempDir(), "db")
	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	if err = o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err = o.Close(); err != nil {
		t.Fatal(err)
	}

	var store, err2 = storage.Open(config.StorageDir)
	if err2 != nil {
		t.Fatal(err2)
	}
	defer store.Close()
	var stats, err3 = store.LoadRunStats()
	if err3 != nil {
		t.Fatal(err3)
	}
	if stats.GamesPlayed != 1 {
		t.Error("games played:", stats.GamesPlayed)
	}
	var book, err4 = store.LoadEloBook()
	if err4 != nil {
		t.Fatal(err4)
	}
	if len(book.Players) != 2 {
		t.Error("persisted elo players:", len(book.Players))
	}
}

func TestColorPairing(t *testing.T) {
	// each round pair plays both orders: W,B,B,W,W,B,B,W,...
	var want = []bool{false, true, true, false, false, true, true, false}
	for game, swap := range want {
		if got := swapColors(game); got != swap {
			t.Error("game", game, "swap", got, "want", swap)
		}
	}
}

func TestRunPairsColors(t *testing.T) {
	var config = testConfig(t)
	config.Games = 4
	config.Concurrency = 2
	config.MaxPly = 4
	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	if err = o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var f, err2 = os.Open(config.ResultsLog)
	if err2 != nil {
		t.Fatal(err2)
	}
	defer f.Close()
	var whiteByGame = map[int]string{}
	var scanner = bufio.NewScanner(f)
	for scanner.Scan() {
		var record resultRecord
		if err = json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatal("bad result line:", err)
		}
		whiteByGame[record.Game] = record.White
	}
	var want = []string{"white-engine", "black-engine", "black-engine", "white-engine"}
	for i, name := range want {
		if whiteByGame[i+1] != name {
			t.Error("game", i+1, "white:", whiteByGame[i+1], "want", name)
		}
	}
}

func TestSelectMoveDeterministicCases(t *testing.T) {
	var config = DefaultConfig()
	config.Seed = 7
	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	var best = common.Move(1)
	var second = common.Move(2)
	var far = common.Move(3)
	var search = engine.SearchResult{
		BestMove: best,
		RootMoves: []engine.RootMove{
			{Move: best, Score: 30},
			{Move: second, Score: 10},
			{Move: far, Score: -300},
		},
	}

	// past the randomness window only the best move plays
	if got := o.selectMove(search, config.Randomness.MaxPly); got != best {
		t.Error("late ply should be deterministic, got", got)
	}

	// mate scores disable sampling
	var mate = search
	mate.RootMoves = []engine.RootMove{{Move: best, Score: engine.MateValue - 3}, {Move: second, Score: 0}}
	if got := o.selectMove(mate, 0); got != best {
		t.Error("mate position should play the mate, got", got)
	}

	// sampling stays within the score margin
	for i := 0; i < 50; i++ {
		var got = o.selectMove(search, 0)
		if got == far {
			t.Fatal("sampled a move outside the margin")
		}
		if got != best && got != second {
			t.Fatal("sampled unknown move", got)
		}
	}

	var zeroTemp = o
	zeroTemp.config.Randomness.Temperature = 0
	if got := zeroTemp.selectMove(search, 0); got != best {
		t.Error("zero temperature must play best, got", got)
	}
}

func TestInsufficientMaterial(t *testing.T) {
	var tests = []struct {
		fen  string
		want bool
	}{
		{"4k3/8/8/8/8/8/8/4K3 w - - 0 1", true},
		{"4k3/8/8/8/8/8/8/2B1K3 w - - 0 1", true},
		{"4k3/8/8/8/8/8/8/2N1K3 b - - 0 1", true},
		{"2b1k3/8/8/8/8/8/8/2B1K3 w - - 0 1", false}, // c1 dark, c8 light
		{"1b2k3/8/8/8/8/8/8/2B1K3 w - - 0 1", true},  // both dark
		{"4k3/8/8/8/8/8/4P3/4K3 w - - 0 1", false},
		{"4k3/8/8/8/8/8/8/R3K3 w - - 0 1", false},
		{"4k3/8/8/8/8/8/8/1NN1K3 w - - 0 1", false},
	}
	for _, test := range tests {
		var p, err = common.NewPositionFromFEN(test.fen)
		if err != nil {
			t.Fatal(test.fen, err)
		}
		if got := insufficientMaterial(&p); got != test.want {
			t.Error(test.fen, "want", test.want, "got", got)
		}
	}
}

func TestTrainingFlushWritesCheckpoint(t *testing.T) {
	var dir = t.TempDir()
	var config = testConfig(t)
	config.Training.Enabled = true
	config.Training.BatchSize = 2
	config.Training.LearningRate = 1e-6
	config.Training.HiddenSize = 8
	config.Training.OutputPath = filepath.Join(dir, "net.nnue")
	config.Training.HistoryDir = filepath.Join(dir, "history")

	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	var result = Result{
		Result:   "1-0",
		StartFen: common.InitialPositionFen,
		Fens:     []string{"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"},
	}
	if err = o.handleTraining(context.Background(), result); err != nil {
		t.Fatal(err)
	}

	if _, err = os.Stat(config.Training.OutputPath); err != nil {
		t.Fatal("checkpoint missing:", err)
	}
	var snapshot = filepath.Join(config.Training.HistoryDir, "net-iter000001.nnue")
	if _, err = os.Stat(snapshot); err != nil {
		t.Fatal("history snapshot missing:", err)
	}

	// engines pick up the new network on the next game
	o.configMu.Lock()
	var white = o.config.White.NetworkPath
	o.configMu.Unlock()
	if white != config.Training.OutputPath {
		t.Error("network path not rebound:", white)
	}
}

func TestDetectHistoryIterationResumes(t *testing.T) {
	var dir = t.TempDir()
	var config = testConfig(t)
	config.Training.Enabled = true
	config.Training.HiddenSize = 8
	config.Training.OutputPath = filepath.Join(dir, "net.nnue")
	config.Training.HistoryDir = filepath.Join(dir, "history")
	if err := os.MkdirAll(config.Training.HistoryDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"net-iter000002.nnue", "net-iter000007.nnue", "other.txt"} {
		if err := os.WriteFile(filepath.Join(config.Training.HistoryDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	if o.trainingIteration != 7 {
		t.Error("iteration not resumed:", o.trainingIteration)
	}
}

func TestCheckpointFailureAbortsRun(t *testing.T) {
	var dir = t.TempDir()
	var block = filepath.Join(dir, "block")
	if err := os.WriteFile(block, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var config = testConfig(t)
	config.Games = 1
	config.Concurrency = 1
	config.MaxPly = 8
	config.Training.Enabled = true
	config.Training.BatchSize = 1
	config.Training.LearningRate = 1e-6
	config.Training.HiddenSize = 8
	// the checkpoint directory is shadowed by a regular file
	config.Training.OutputPath = filepath.Join(block, "net.nnue")
	config.Training.HistoryDir = ""

	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	if err = o.Run(context.Background()); err == nil {
		t.Fatal("run must surface a failed checkpoint")
	}
}

type stubTeacher struct {
	score int
	err   error
	calls int
}

func (s *stubTeacher) Evaluate(ctx context.Context, fens []string) ([]int, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var scores = make([]int, len(fens))
	for i := range scores {
		scores[i] = s.score
	}
	return scores, nil
}

func TestTeacherFailureAbortsTraining(t *testing.T) {
	var config = testConfig(t)
	config.Training.Enabled = true
	config.Training.BatchSize = 100
	config.Training.HiddenSize = 8
	config.Training.OutputPath = filepath.Join(t.TempDir(), "net.nnue")
	config.TeacherChunk = 1
	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	var result = Result{
		Result:   "1-0",
		StartFen: common.InitialPositionFen,
		Fens:     []string{"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"},
	}

	o.teacherEngine = &stubTeacher{err: fmt.Errorf("%w: 0 evaluations for 1 positions", ErrTeacher)}
	if err = o.handleTraining(context.Background(), result); !errors.Is(err, ErrTeacher) {
		t.Fatal("teacher failure must surface, got", err)
	}

	o.teacherEngine = &stubTeacher{score: 42}
	o.teacherQueue = nil
	if err = o.handleTraining(context.Background(), result); err != nil {
		t.Fatal(err)
	}
	o.trainMu.Lock()
	defer o.trainMu.Unlock()
	if len(o.trainingBuffer) != 2 {
		t.Fatal("annotated positions not buffered:", len(o.trainingBuffer))
	}
	for _, example := range o.trainingBuffer {
		if example.TargetCp != 42 {
			t.Error("teacher score not used as target:", example.TargetCp)
		}
	}
}

func TestAbandonedGameSkipsRatingAndTraining(t *testing.T) {
	var config = testConfig(t)
	config.Training.Enabled = true
	config.Training.BatchSize = 100
	config.Training.HiddenSize = 8
	config.Training.OutputPath = filepath.Join(t.TempDir(), "net.nnue")
	var o, err = NewOrchestrator(config)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	var ctx, cancel = context.WithCancel(context.Background())
	cancel()
	var result, err2 = o.PlayGame(ctx, 0, config.White, config.Black)
	if err2 != nil {
		t.Fatal(err2)
	}
	if result.Termination != "error" || result.Result != "*" {
		t.Fatal("want abandoned game, got", result.Result, result.Termination)
	}
	if len(o.snapshotRatings()) != 0 {
		t.Error("abandoned game was rated")
	}
	o.trainMu.Lock()
	var buffered = len(o.trainingBuffer)
	o.trainMu.Unlock()
	if buffered != 0 {
		t.Error("abandoned game fed training:", buffered)
	}
}
