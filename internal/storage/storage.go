package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/chiron-chess/chiron/internal/elo"
)

const (
	keyEloBook  = "elo_book"
	keyRunStats = "run_stats"

	gameKeyPrefix = "game/"
)

// RunStats aggregates a self-play run across sessions.
type RunStats struct {
	GamesPlayed      int            `json:"games_played"`
	WhiteWins        int            `json:"white_wins"`
	BlackWins        int            `json:"black_wins"`
	Draws            int            `json:"draws"`
	Terminations     map[string]int `json:"terminations"`
	TrainingExamples int            `json:"training_examples"`
	TotalPlayTime    time.Duration  `json:"total_play_time"`
}

func NewRunStats() *RunStats {
	return &RunStats{Terminations: make(map[string]int)}
}

// EloBook is the persisted rating table.
type EloBook struct {
	Players   []elo.PlayerSummary `json:"players"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// GameRecord mirrors one finished game as written to the result log.
type GameRecord struct {
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
}

// Storage wraps BadgerDB for run persistence.
type Storage struct {
	db *badger.DB
}

func Open(dir string) (*Storage, error) {
	var opts = badger.DefaultOptions(dir)
	opts.Logger = nil

	var db, err = badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) setJSON(key string, v any) error {
	var data, err = json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Storage) getJSON(key string, v any) (found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		var item, err = txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	return
}

func (s *Storage) SaveEloBook(book *EloBook) error {
	book.UpdatedAt = time.Now()
	return s.setJSON(keyEloBook, book)
}

// LoadEloBook returns an empty book when none was saved yet.
func (s *Storage) LoadEloBook() (*EloBook, error) {
	var book = &EloBook{}
	var _, err = s.getJSON(keyEloBook, book)
	return book, err
}

func (s *Storage) SaveRunStats(stats *RunStats) error {
	return s.setJSON(keyRunStats, stats)
}

func (s *Storage) LoadRunStats() (*RunStats, error) {
	var stats = NewRunStats()
	var _, err = s.getJSON(keyRunStats, stats)
	return stats, err
}

func gameKey(game int) []byte {
	return []byte(fmt.Sprintf("%s%08d", gameKeyPrefix, game))
}

func (s *Storage) SaveGameRecord(record *GameRecord) error {
	var data, err = json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(gameKey(record.Game), data)
	})
}

// LoadGameRecords returns every stored game in key order.
func (s *Storage) LoadGameRecords() ([]GameRecord, error) {
	var records []GameRecord
	var err = s.db.View(func(txn *badger.Txn) error {
		var opts = badger.DefaultIteratorOptions
		opts.Prefix = []byte(gameKeyPrefix)
		var it = txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var record GameRecord
			var err = it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// RecordGame stores the game blob and folds it into the aggregate stats in
// one call.
func (s *Storage) RecordGame(record *GameRecord) error {
	if err := s.SaveGameRecord(record); err != nil {
		return err
	}
	var stats, err = s.LoadRunStats()
	if err != nil {
		return err
	}
	stats.GamesPlayed++
	stats.TotalPlayTime += time.Duration(record.DurationMs) * time.Millisecond
	switch record.Result {
	case "1-0":
		stats.WhiteWins++
	case "0-1":
		stats.BlackWins++
	default:
		stats.Draws++
	}
	stats.Terminations[record.Termination]++
	return s.SaveRunStats(stats)
}
