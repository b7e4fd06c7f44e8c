package selfplay

import (
	"github.com/chiron-chess/chiron/pkg/eval/nnue"
)

// EngineConfig describes one side of a self-play pairing.
type EngineConfig struct {
	Name        string
	MaxDepth    int
	TableSize   int
	NetworkPath string
	Threads     int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Name:      "Chiron",
		MaxDepth:  6,
		TableSize: 1 << 20,
		Threads:   1,
	}
}

// TrainingConfig controls online learning during the run.
type TrainingConfig struct {
	Enabled      bool
	BatchSize    int
	LearningRate float64
	OutputPath   string
	HistoryDir   string
	HiddenSize   int
}

// RandomnessConfig softens move selection in the opening so repeated
// pairings do not replay the same game. Temperature 0 disables it.
type RandomnessConfig struct {
	Temperature float64
	MaxPly      int
	TopMoves    int
	ScoreMargin int
}

type Config struct {
	Games           int
	White           EngineConfig
	Black           EngineConfig
	AlternateColors bool
	MaxPly          int
	CaptureResults  bool
	CapturePGN      bool
	RecordFens      bool
	Verbose         bool
	ResultsLog      string
	PgnPath         string
	AppendLogs      bool
	Seed            int64
	Concurrency     int
	Training        TrainingConfig
	TeacherMode     bool
	Teacher         TeacherConfig
	TeacherChunk    int
	Randomness      RandomnessConfig

	// StorageDir enables the badger-backed run archive when set.
	StorageDir string
}

func DefaultConfig() Config {
	return Config{
		Games:           1,
		White:           DefaultEngineConfig(),
		Black:           DefaultEngineConfig(),
		AlternateColors: true,
		MaxPly:          1024,
		CaptureResults:  true,
		CapturePGN:      true,
		ResultsLog:      "selfplay_results.jsonl",
		PgnPath:         "selfplay_games.pgn",
		AppendLogs:      true,
		Concurrency:     1,
		Training: TrainingConfig{
			BatchSize:    256,
			LearningRate: 0.05,
			OutputPath:   "nnue/models/chiron-selfplay-latest.nnue",
			HistoryDir:   "nnue/models/history",
			HiddenSize:   nnue.DefaultHiddenSize,
		},
		TeacherChunk: 256,
		Randomness: RandomnessConfig{
			Temperature: 0.7,
			MaxPly:      24,
			TopMoves:    4,
			ScoreMargin: 40,
		},
	}
}
