package nnue

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/chiron-chess/chiron/pkg/common"
)

func TestDefaultEvaluation(t *testing.T) {
	var tests = []struct {
		fen  string
		sign int
	}{
		{common.InitialPositionFen, 0},
		{"8/8/8/8/8/8/4P3/7K w - - 0 1", 1},
		{"8/8/8/8/8/8/4p3/7k w - - 0 1", -1},
		{"4k3/8/8/8/8/8/4P3/4K3 b - - 0 1", -1},
		{"4k3/8/8/8/8/8/8/3QK3 w - - 0 1", 1},
	}
	var e = NewEvaluator("")
	for _, test := range tests {
		var p, err = common.NewPositionFromFEN(test.fen)
		if err != nil {
			t.Fatal(test.fen, err)
		}
		var score = e.EvaluatePosition(&p)
		switch {
		case test.sign == 0 && score != 0:
			t.Error(test.fen, "want 0, got", score)
		case test.sign > 0 && score <= 0:
			t.Error(test.fen, "want positive, got", score)
		case test.sign < 0 && score >= 0:
			t.Error(test.fen, "want negative, got", score)
		}
	}
}

// Play random legal moves and check the incrementally updated accumulator
// against a full rebuild after every move.
func TestIncrementalAccumulator(t *testing.T) {
	var e = NewEvaluator("")
	var h = e.HiddenSize()
	var r = rand.New(rand.NewSource(42))

	for game := 0; game < 10; game++ {
		var p, err = common.NewPositionFromFEN(common.InitialPositionFen)
		if err != nil {
			t.Fatal(err)
		}
		var acc = NewAccumulator(h)
		var next = NewAccumulator(h)
		var rebuilt = NewAccumulator(h)
		e.BuildAccumulator(&p, acc)

		var u common.UndoState
		for ply := 0; ply < 60; ply++ {
			var ml = common.GenerateLegalMoves(&p)
			if len(ml) == 0 {
				break
			}
			var move = ml[r.Intn(len(ml))]
			e.UpdateAccumulator(&p, move, acc, next)
			if !p.MakeMove(move, &u) {
				t.Fatal("legal move rejected", move)
			}
			e.BuildAccumulator(&p, rebuilt)
			for n := 0; n < h; n++ {
				if next.White[n] != rebuilt.White[n] || next.Black[n] != rebuilt.Black[n] {
					t.Fatal(game, ply, move, "accumulator diverged at neuron", n)
				}
			}
			acc, next = next, acc
		}
	}
}

func TestNetworkFileRoundTrip(t *testing.T) {
	var n = NewDefaultNetwork(8)
	n.Bias = -17
	n.Scale = 1.5
	n.HiddenBiases[3] = 250
	n.OutputWeights[5] = 0.25
	n.SetInputWeight(FeatureIndex(common.Knight, false, common.SquareC6), 2, -421)

	var path = filepath.Join(t.TempDir(), "test.nn")
	if err := SaveNetworkFile(n, path); err != nil {
		t.Fatal(err)
	}
	var loaded, err = LoadNetworkFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.HiddenSize != n.HiddenSize || loaded.Bias != n.Bias || loaded.Scale != n.Scale {
		t.Fatal("header mismatch")
	}
	for i := range n.HiddenBiases {
		if loaded.HiddenBiases[i] != n.HiddenBiases[i] {
			t.Fatal("hidden bias mismatch at", i)
		}
	}
	for i := range n.OutputWeights {
		if loaded.OutputWeights[i] != n.OutputWeights[i] {
			t.Fatal("output weight mismatch at", i)
		}
	}
	for f := 0; f < FeatureCount; f++ {
		for neuron := 0; neuron < n.HiddenSize; neuron++ {
			if loaded.InputWeight(f, neuron) != n.InputWeight(f, neuron) {
				t.Fatal("input weight mismatch", f, neuron)
			}
		}
	}
}

func TestBadNetworkFile(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "bad.nn")
	if err := os.WriteFile(path, []byte("NOPE"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadNetworkFile(path); err == nil {
		t.Fatal("expected format error")
	}
}

func TestEvaluatorFallsBackToDefault(t *testing.T) {
	var e = NewEvaluator(filepath.Join(t.TempDir(), "missing.nn"))
	var p, err = common.NewPositionFromFEN(common.InitialPositionFen)
	if err != nil {
		t.Fatal(err)
	}
	if score := e.EvaluatePosition(&p); score != 0 {
		t.Error("default fallback should evaluate start position to 0, got", score)
	}
}
