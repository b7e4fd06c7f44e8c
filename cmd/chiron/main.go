package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/chiron-chess/chiron/internal/pgn"
	"github.com/chiron-chess/chiron/internal/selfplay"
	"github.com/chiron-chess/chiron/internal/trainer"
	"github.com/chiron-chess/chiron/pkg/common"
	"github.com/chiron-chess/chiron/pkg/engine"
	"github.com/chiron-chess/chiron/pkg/eval/nnue"
)

var logger = log.New(os.Stderr, "", log.LstdFlags)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "selfplay":
		err = runSelfplay(ctx, os.Args[2:])
	case "train":
		err = runTrain(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "perft":
		err = runPerft(os.Args[2:])
	case "bench":
		err = runBench(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: chiron <selfplay|train|import|perft|bench> [flags]")
}

func runSelfplay(ctx context.Context, args []string) error {
	var config = selfplay.DefaultConfig()
	var fs = flag.NewFlagSet("selfplay", flag.ExitOnError)
	fs.IntVar(&config.Games, "games", config.Games, "number of games to play")
	fs.IntVar(&config.Concurrency, "concurrency", config.Concurrency, "games played in parallel")
	fs.IntVar(&config.MaxPly, "max-ply", config.MaxPly, "adjudicate as draw after this many plies")
	fs.BoolVar(&config.AlternateColors, "alternate", config.AlternateColors, "swap colors every other game")
	fs.BoolVar(&config.Verbose, "verbose", false, "log every move")
	fs.Int64Var(&config.Seed, "seed", 0, "randomness seed (0 = time based)")
	fs.StringVar(&config.ResultsLog, "results", config.ResultsLog, "JSONL results log path")
	fs.StringVar(&config.PgnPath, "pgn", config.PgnPath, "PGN log path")
	fs.StringVar(&config.StorageDir, "storage", "", "badger database directory for the run archive")

	fs.StringVar(&config.White.Name, "white-name", "chiron-white", "white player name")
	fs.StringVar(&config.Black.Name, "black-name", "chiron-black", "black player name")
	fs.IntVar(&config.White.MaxDepth, "white-depth", config.White.MaxDepth, "white search depth")
	fs.IntVar(&config.Black.MaxDepth, "black-depth", config.Black.MaxDepth, "black search depth")
	fs.IntVar(&config.White.Threads, "white-threads", config.White.Threads, "white search threads")
	fs.IntVar(&config.Black.Threads, "black-threads", config.Black.Threads, "black search threads")
	fs.StringVar(&config.White.NetworkPath, "white-net", "", "white network file")
	fs.StringVar(&config.Black.NetworkPath, "black-net", "", "black network file")

	fs.BoolVar(&config.Training.Enabled, "train", false, "train the network from played games")
	fs.IntVar(&config.Training.BatchSize, "batch", config.Training.BatchSize, "training batch size")
	fs.Float64Var(&config.Training.LearningRate, "lr", config.Training.LearningRate, "training learning rate")
	fs.StringVar(&config.Training.OutputPath, "train-out", config.Training.OutputPath, "network checkpoint path")
	fs.StringVar(&config.Training.HistoryDir, "train-history", config.Training.HistoryDir, "checkpoint history directory")
	fs.IntVar(&config.Training.HiddenSize, "hidden", config.Training.HiddenSize, "hidden layer size for a fresh network")

	fs.StringVar(&config.Teacher.EnginePath, "teacher", "", "external UCI engine for annotation targets")
	fs.IntVar(&config.Teacher.Depth, "teacher-depth", 20, "teacher search depth")
	fs.IntVar(&config.Teacher.Threads, "teacher-threads", 1, "teacher engine threads")
	fs.IntVar(&config.TeacherChunk, "teacher-chunk", config.TeacherChunk, "positions per teacher batch")

	fs.Float64Var(&config.Randomness.Temperature, "temperature", config.Randomness.Temperature, "softmax temperature for opening variety (0 disables)")
	fs.IntVar(&config.Randomness.MaxPly, "random-ply", config.Randomness.MaxPly, "apply randomness up to this ply (0 = whole game)")
	fs.IntVar(&config.Randomness.TopMoves, "random-top", config.Randomness.TopMoves, "randomize among at most this many moves")
	fs.IntVar(&config.Randomness.ScoreMargin, "random-margin", config.Randomness.ScoreMargin, "randomize only within this many centipawns of the best move")
	if err := fs.Parse(args); err != nil {
		return err
	}
	config.TeacherMode = config.Teacher.EnginePath != ""

	var o, err = selfplay.NewOrchestrator(config)
	if err != nil {
		return err
	}
	defer o.Close()

	color.New(color.FgCyan, color.Bold).Printf("chiron selfplay: %d game(s), concurrency %d\n",
		config.Games, config.Concurrency)
	var start = time.Now()
	if err = o.Run(ctx); err != nil {
		return err
	}
	color.Green("done in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func runTrain(args []string) error {
	var fs = flag.NewFlagSet("train", flag.ExitOnError)
	var dataFiles = fs.String("data", "", "comma separated FEN|cp training files")
	var networkIn = fs.String("net", "", "network to continue training (empty = fresh)")
	var out = fs.String("out", "chiron.nnue", "output network path")
	var hidden = fs.Int("hidden", nnue.DefaultHiddenSize, "hidden layer size for a fresh network")
	var lr = fs.Float64("lr", 0.05, "learning rate")
	var reg = fs.Float64("reg", 0.0005, "L2 regularisation")
	var batchSize = fs.Int("batch", 256, "batch size")
	var epochs = fs.Int("epochs", 1, "passes over the data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataFiles == "" {
		return fmt.Errorf("train: -data is required")
	}

	var data, err = trainer.LoadTrainingFiles(strings.Split(*dataFiles, ","))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("train: no examples loaded")
	}
	color.New(color.FgCyan, color.Bold).Printf("chiron train: %d example(s), %d epoch(s)\n", len(data), *epochs)

	var ps = trainer.NewParameterSet(*hidden)
	if *networkIn != "" {
		if err = ps.Load(*networkIn); err != nil {
			return err
		}
	}
	var tr = trainer.NewTrainer(trainer.Config{LearningRate: *lr, Regularisation: *reg})

	var start = time.Now()
	for epoch := 0; epoch < *epochs; epoch++ {
		for begin := 0; begin < len(data); begin += *batchSize {
			var end = min(begin+*batchSize, len(data))
			tr.TrainBatch(data[begin:end], ps)
		}
		logger.Printf("epoch %d/%d done", epoch+1, *epochs)
	}
	if err = ps.Save(*out); err != nil {
		return err
	}
	color.Green("saved %s after %s", *out, time.Since(start).Round(time.Millisecond))
	return nil
}

func runImport(args []string) error {
	var fs = flag.NewFlagSet("import", flag.ExitOnError)
	var in = fs.String("pgn", "", "PGN file to import")
	var out = fs.String("out", "dataset.txt", "output FEN|cp training file")
	var includeDraws = fs.Bool("draws", false, "keep positions from drawn games")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("import: -pgn is required")
	}
	if err := pgn.WriteDataset(*in, *out, *includeDraws); err != nil {
		return err
	}
	color.Green("wrote %s", *out)
	return nil
}

func runPerft(args []string) error {
	var fs = flag.NewFlagSet("perft", flag.ExitOnError)
	var fen = fs.String("fen", common.InitialPositionFen, "position to count from")
	var depth = fs.Int("depth", 5, "perft depth")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var p, err = common.NewPositionFromFEN(*fen)
	if err != nil {
		return err
	}
	for d := 1; d <= *depth; d++ {
		var start = time.Now()
		var nodes = common.Perft(&p, d)
		var elapsed = time.Since(start)
		var nps = int64(0)
		if elapsed > 0 {
			nps = int64(float64(nodes) / elapsed.Seconds())
		}
		color.New(color.FgYellow).Printf("perft %d: ", d)
		fmt.Printf("%d nodes in %s (%d nps)\n", nodes, elapsed.Round(time.Microsecond), nps)
	}
	return nil
}

var benchFens = []string{
	common.InitialPositionFen,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
}

func runBench(ctx context.Context, args []string) error {
	var fs = flag.NewFlagSet("bench", flag.ExitOnError)
	var depth = fs.Int("depth", 8, "search depth per position")
	var threads = fs.Int("threads", 1, "search threads")
	var networkPath = fs.String("net", "", "network file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var e = engine.NewEngine(nnue.NewEvaluator(*networkPath))
	e.Threads = *threads

	var totalNodes int64
	var start = time.Now()
	for i, fen := range benchFens {
		var p, err = common.NewPositionFromFEN(fen)
		if err != nil {
			return err
		}
		e.NewGame()
		var result = e.Search(ctx, p, engine.SearchLimits{MaxDepth: *depth}, nil)
		totalNodes += result.Nodes
		color.New(color.FgYellow).Printf("position %d: ", i+1)
		fmt.Printf("bestmove %s depth %d score %d nodes %d time %dms\n",
			result.BestMove, result.Depth, result.Score, result.Nodes, result.TimeMs)
	}
	var elapsed = time.Since(start)
	var nps = int64(0)
	if elapsed > 0 {
		nps = int64(float64(totalNodes) / elapsed.Seconds())
	}
	color.New(color.FgGreen, color.Bold).Printf("bench: %d nodes in %s (%d nps)\n",
		totalNodes, elapsed.Round(time.Millisecond), nps)
	return nil
}
