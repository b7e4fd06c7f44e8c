package elo

import (
	"math"
	"testing"
)

func TestEqualRatingsExpectHalf(t *testing.T) {
	var tracker = NewTracker(1500, 24)
	var update = tracker.RecordGame("a", "b", 1)
	if math.Abs(update.ExpectedWhite-0.5) > 1e-9 {
		t.Error("expected score for equal ratings:", update.ExpectedWhite)
	}
	if math.Abs(update.White.Rating-1512) > 1e-9 {
		t.Error("winner rating:", update.White.Rating)
	}
	if math.Abs(update.Black.Rating-1488) > 1e-9 {
		t.Error("loser rating:", update.Black.Rating)
	}
	if math.Abs(update.White.Delta-12) > 1e-9 {
		t.Error("winner delta:", update.White.Delta)
	}
}

func TestDrawMovesRatingsTowardEachOther(t *testing.T) {
	var tracker = NewTracker(1500, 24)
	tracker.RecordGame("strong", "weak", 1)
	tracker.RecordGame("strong", "weak", 1)
	var update = tracker.RecordGame("strong", "weak", 0.5)
	if update.White.Delta >= 0 {
		t.Error("favourite drawing must lose rating:", update.White.Delta)
	}
	if update.Black.Delta <= 0 {
		t.Error("underdog drawing must gain rating:", update.Black.Delta)
	}
	if update.White.Draws != 1 || update.Black.Draws != 1 {
		t.Error("draw not counted")
	}
}

func TestWinDrawLossThresholds(t *testing.T) {
	var tracker = NewTracker(1500, 24)
	tracker.RecordGame("a", "b", 0.8)
	tracker.RecordGame("a", "b", 0.5)
	tracker.RecordGame("a", "b", 0.1)
	var table = tracker.Snapshot()
	for _, p := range table {
		if p.Games != 3 || p.Wins != 1 || p.Draws != 1 || p.Losses != 1 {
			t.Error(p.Name, "stats:", p.Wins, p.Draws, p.Losses)
		}
	}
}

func TestSnapshotOrder(t *testing.T) {
	var tracker = NewTracker(1500, 24)
	tracker.RecordGame("alpha", "beta", 0)
	tracker.RecordGame("gamma", "delta", 0.5)
	var table = tracker.Snapshot()
	if len(table) != 4 {
		t.Fatal("player count:", len(table))
	}
	for i := 1; i < len(table); i++ {
		var prev, cur = table[i-1], table[i]
		if prev.Rating < cur.Rating-1e-6 {
			t.Fatal("ratings not descending")
		}
		if math.Abs(prev.Rating-cur.Rating) <= 1e-6 && prev.Name > cur.Name {
			t.Fatal("ties not broken by name")
		}
	}
	if table[0].Name != "beta" {
		t.Error("winner should lead the table, got", table[0].Name)
	}
}

func TestScoreAccumulates(t *testing.T) {
	var tracker = NewTracker(1500, 24)
	tracker.RecordGame("a", "b", 1)
	var update = tracker.RecordGame("a", "b", 0.5)
	if math.Abs(update.White.Score-1.5) > 1e-9 {
		t.Error("white score:", update.White.Score)
	}
	if math.Abs(update.Black.Score-0.5) > 1e-9 {
		t.Error("black score:", update.Black.Score)
	}
}
