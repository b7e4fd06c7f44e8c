package elo

import (
	"math"
	"sort"
)

const (
	DefaultInitialRating = 1500
	DefaultKFactor       = 24
)

type PlayerSummary struct {
	Name   string
	Rating float64
	Delta  float64
	Games  int
	Wins   int
	Draws  int
	Losses int
	Score  float64
}

type GameUpdate struct {
	White         PlayerSummary
	Black         PlayerSummary
	ExpectedWhite float64
	Result        float64
}

type playerStats struct {
	rating float64
	games  int
	wins   int
	draws  int
	losses int
	score  float64
}

// Tracker accumulates Elo ratings across self-play games. Not safe for
// concurrent use; the arena serializes result recording.
type Tracker struct {
	initialRating float64
	kFactor       float64
	players       map[string]*playerStats
}

func NewTracker(initialRating, kFactor float64) *Tracker {
	return &Tracker{
		initialRating: initialRating,
		kFactor:       kFactor,
		players:       make(map[string]*playerStats),
	}
}

func expectedScore(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/400))
}

func (t *Tracker) player(name string) *playerStats {
	var p, ok = t.players[name]
	if !ok {
		p = &playerStats{rating: t.initialRating}
		t.players[name] = p
	}
	return p
}

// RecordGame updates both ratings from white's score: 1 win, 0.5 draw,
// 0 loss. Scores above 0.75 count as wins, below 0.25 as losses,
// everything between as draws.
func (t *Tracker) RecordGame(white, black string, whiteScore float64) GameUpdate {
	var ws = t.player(white)
	var bs = t.player(black)

	var expectedWhite = expectedScore(ws.rating, bs.rating)
	var previousWhite = ws.rating
	var previousBlack = bs.rating

	var blackScore = 1 - whiteScore
	ws.rating += t.kFactor * (whiteScore - expectedWhite)
	bs.rating += t.kFactor * (blackScore - (1 - expectedWhite))

	switch {
	case whiteScore > 0.75:
		ws.wins++
		bs.losses++
	case whiteScore < 0.25:
		ws.losses++
		bs.wins++
	default:
		ws.draws++
		bs.draws++
	}

	ws.games++
	bs.games++
	ws.score += whiteScore
	bs.score += blackScore

	return GameUpdate{
		White:         t.summary(white, ws, ws.rating-previousWhite),
		Black:         t.summary(black, bs, bs.rating-previousBlack),
		ExpectedWhite: expectedWhite,
		Result:        whiteScore,
	}
}

func (t *Tracker) summary(name string, s *playerStats, delta float64) PlayerSummary {
	return PlayerSummary{
		Name:   name,
		Rating: s.rating,
		Delta:  delta,
		Games:  s.games,
		Wins:   s.wins,
		Draws:  s.draws,
		Losses: s.losses,
		Score:  s.score,
	}
}

// Snapshot lists all players sorted by rating descending, names breaking
// ties.
func (t *Tracker) Snapshot() []PlayerSummary {
	var table = make([]PlayerSummary, 0, len(t.players))
	for name, s := range t.players {
		table = append(table, t.summary(name, s, 0))
	}
	sort.Slice(table, func(i, j int) bool {
		if math.Abs(table[i].Rating-table[j].Rating) > 1e-6 {
			return table[i].Rating > table[j].Rating
		}
		return table[i].Name < table[j].Name
	})
	return table
}
