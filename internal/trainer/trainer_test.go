package trainer

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestTrainBatchReducesError(t *testing.T) {
	var example = Example{Fen: "8/8/8/4k3/8/8/4P3/4K3 w - - 0 1", TargetCp: 200}
	var ps = NewParameterSet(8)
	var tr = NewTrainer(Config{LearningRate: 1e-6, Regularisation: 0})

	var before, err = tr.EvaluateExample(example, ps)
	if err != nil {
		t.Fatal(err)
	}
	tr.TrainBatch([]Example{example}, ps)
	var after, err2 = tr.EvaluateExample(example, ps)
	if err2 != nil {
		t.Fatal(err2)
	}
	if math.Abs(float64(example.TargetCp-after)) >= math.Abs(float64(example.TargetCp-before)) {
		t.Error("training did not move prediction toward target:", before, "->", after)
	}
}

// A black-to-move example with a positive target must push the evaluation
// up from black's perspective, not white's.
func TestTrainBatchOrientation(t *testing.T) {
	var example = Example{Fen: "4k3/4p3/8/8/8/4K3/8/8 b - - 0 1", TargetCp: 300}
	var ps = NewParameterSet(8)
	var tr = NewTrainer(Config{LearningRate: 1e-6, Regularisation: 0})

	var before, _ = tr.EvaluateExample(example, ps)
	tr.TrainBatch([]Example{example}, ps)
	var after, _ = tr.EvaluateExample(example, ps)
	if after <= before {
		t.Error("black-side target ignored:", before, "->", after)
	}
}

func TestTrainBatchSkipsBadFen(t *testing.T) {
	var ps = NewParameterSet(4)
	var tr = NewTrainer(DefaultConfig())
	tr.TrainBatch([]Example{{Fen: "not a position", TargetCp: 100}}, ps)
	if ps.Network().Bias != 0 {
		t.Error("bad FEN still trained")
	}
}

func TestParameterSetCheckpointRoundTrip(t *testing.T) {
	var example = Example{Fen: "8/8/8/4k3/8/8/4P3/4K3 w - - 0 1", TargetCp: 200}
	var ps = NewParameterSet(8)
	var tr = NewTrainer(Config{LearningRate: 0.1, Regularisation: 0})
	tr.TrainBatch([]Example{example}, ps)
	var before, err = tr.EvaluateExample(example, ps)
	if err != nil {
		t.Fatal(err)
	}

	var path = filepath.Join(t.TempDir(), "checkpoint.nnue")
	if err = ps.Save(path); err != nil {
		t.Fatal(err)
	}
	var reloaded = NewParameterSet(8)
	if err = reloaded.Load(path); err != nil {
		t.Fatal(err)
	}
	var after, err2 = tr.EvaluateExample(example, reloaded)
	if err2 != nil {
		t.Fatal(err2)
	}
	if before != after {
		t.Error("checkpoint changed the evaluation:", before, "!=", after)
	}
}

func TestTrainingFileRoundTrip(t *testing.T) {
	var data = []Example{
		{Fen: "8/8/8/4k3/8/8/4P3/4K3 w - - 0 1", TargetCp: 200},
		{Fen: "4k3/4p3/8/8/8/4K3/8/8 b - - 0 1", TargetCp: -150},
	}
	var path = filepath.Join(t.TempDir(), "data.txt")
	if err := SaveTrainingFile(path, data); err != nil {
		t.Fatal(err)
	}
	var loaded, err = LoadTrainingFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != len(data) {
		t.Fatal("count mismatch:", len(loaded))
	}
	for i := range data {
		if loaded[i] != data[i] {
			t.Error("example mismatch at", i)
		}
	}
}

func TestLoadTrainingFileSkipsMalformed(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "data.txt")
	var content = "fen one|100\n\nno separator\nfen two|not a number\nfen three|-50\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	var loaded, err = LoadTrainingFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0].TargetCp != 100 || loaded[1].TargetCp != -50 {
		t.Error("malformed lines not skipped:", loaded)
	}
}

func TestLoadTrainingFilesKeepsOrder(t *testing.T) {
	var dir = t.TempDir()
	var first = filepath.Join(dir, "a.txt")
	var second = filepath.Join(dir, "b.txt")
	if err := SaveTrainingFile(first, []Example{{Fen: "a", TargetCp: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := SaveTrainingFile(second, []Example{{Fen: "b", TargetCp: 2}}); err != nil {
		t.Fatal(err)
	}
	var loaded, err = LoadTrainingFiles([]string{first, second})
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0].Fen != "a" || loaded[1].Fen != "b" {
		t.Error("order not preserved:", loaded)
	}
}
