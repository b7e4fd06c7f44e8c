package trainer

import (
	"math"

	"github.com/chiron-chess/chiron/pkg/common"
	"github.com/chiron-chess/chiron/pkg/eval/nnue"
)

// Example pairs a FEN position with a target evaluation in centipawns from
// the side to move.
type Example struct {
	Fen      string
	TargetCp int
}

type Config struct {
	LearningRate   float64
	Regularisation float64
}

func DefaultConfig() Config {
	return Config{
		LearningRate:   0.05,
		Regularisation: 0.0005,
	}
}

// ParameterSet owns the mutable network between training batches and
// checkpoints.
type ParameterSet struct {
	network *nnue.Network
}

func NewParameterSet(hiddenSize int) *ParameterSet {
	return &ParameterSet{network: nnue.NewDefaultNetwork(hiddenSize)}
}

func (ps *ParameterSet) Network() *nnue.Network {
	return ps.network
}

func (ps *ParameterSet) Reset(hiddenSize int) {
	ps.network = nnue.NewDefaultNetwork(hiddenSize)
}

func (ps *ParameterSet) Load(path string) error {
	var n, err = nnue.LoadNetworkFile(path)
	if err != nil {
		return err
	}
	ps.network = n
	return nil
}

func (ps *ParameterSet) Save(path string) error {
	return nnue.SaveNetworkFile(ps.network, path)
}

type Trainer struct {
	config Config
}

func NewTrainer(config Config) *Trainer {
	return &Trainer{config: config}
}

const weightLimit = 40000

func clampWeight(v float64) int32 {
	var r = math.Round(v)
	if r > weightLimit {
		return weightLimit
	}
	if r < -weightLimit {
		return -weightLimit
	}
	return int32(r)
}

func positionFeatures(p *common.Position) (white, black []int) {
	for _, side := range [2]bool{true, false} {
		for bb := p.PiecesByColor(side); bb != 0; bb &= bb - 1 {
			var sq = common.FirstOne(bb)
			var feature = nnue.FeatureIndex(p.WhatPiece(sq), side, sq)
			if side {
				white = append(white, feature)
			} else {
				black = append(black, feature)
			}
		}
	}
	return
}

// EvaluateExample runs the forward pass on the example position with the
// current parameters. Centipawns from the side to move.
func (t *Trainer) EvaluateExample(example Example, ps *ParameterSet) (int, error) {
	var p, err = common.NewPositionFromFEN(example.Fen)
	if err != nil {
		return 0, err
	}
	return nnue.EvaluateNetwork(ps.Network(), &p), nil
}

// TrainBatch applies one stochastic gradient step per example. Examples
// with unparseable FENs are skipped.
func (t *Trainer) TrainBatch(batch []Example, ps *ParameterSet) {
	var net = ps.Network()
	var hidden = net.HiddenSize
	var activations = make([]float64, hidden)
	var derivatives = make([]float64, hidden)

	for _, example := range batch {
		var p, err = common.NewPositionFromFEN(example.Fen)
		if err != nil {
			continue
		}
		var whiteFeatures, blackFeatures = positionFeatures(&p)

		var raw = float64(net.Bias)
		for neuron := 0; neuron < hidden; neuron++ {
			var pre = net.HiddenBiases[neuron]
			for _, f := range whiteFeatures {
				pre += net.InputWeight(f, neuron)
			}
			for _, f := range blackFeatures {
				pre -= net.InputWeight(f, neuron)
			}
			var tanhVal = math.Tanh(float64(pre) / nnue.ActivationScale)
			activations[neuron] = tanhVal * nnue.ActivationScale
			derivatives[neuron] = 1 - tanhVal*tanhVal
			raw += activations[neuron] * float64(net.OutputWeights[neuron])
		}

		var orientation = 1.0
		if !p.WhiteMove {
			orientation = -1.0
		}
		var predicted = orientation * raw * float64(net.Scale)
		var lrError = t.config.LearningRate * (float64(example.TargetCp) - predicted) *
			orientation * float64(net.Scale)

		var biasNext = float64(net.Bias) + lrError
		if t.config.Regularisation > 0 {
			biasNext -= t.config.Regularisation * float64(net.Bias)
		}
		net.Bias = clampWeight(biasNext)

		for neuron := 0; neuron < hidden; neuron++ {
			var outputCurrent = float64(net.OutputWeights[neuron])
			var outputNext = outputCurrent + lrError*activations[neuron]
			if t.config.Regularisation > 0 {
				outputNext -= t.config.Regularisation * outputCurrent
			}
			net.OutputWeights[neuron] = float32(outputNext)

			var gradPre = lrError * outputCurrent * derivatives[neuron]
			var hiddenCurrent = float64(net.HiddenBiases[neuron])
			var hiddenNext = hiddenCurrent + gradPre
			if t.config.Regularisation > 0 {
				hiddenNext -= t.config.Regularisation * hiddenCurrent
			}
			net.HiddenBiases[neuron] = clampWeight(hiddenNext)

			if math.Abs(gradPre) < 1e-12 {
				continue
			}

			for _, f := range whiteFeatures {
				var current = float64(net.InputWeight(f, neuron))
				var next = current + gradPre
				if t.config.Regularisation > 0 {
					next -= t.config.Regularisation * current
				}
				net.SetInputWeight(f, neuron, clampWeight(next))
			}
			for _, f := range blackFeatures {
				var current = float64(net.InputWeight(f, neuron))
				var next = current - gradPre
				if t.config.Regularisation > 0 {
					next -= t.config.Regularisation * current
				}
				net.SetInputWeight(f, neuron, clampWeight(next))
			}
		}
	}
}
