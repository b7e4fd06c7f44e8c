package nnue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chiron-chess/chiron/pkg/common"
)

const (
	FeatureCount      = 2 * 6 * 64
	DefaultHiddenSize = 64

	// Pre-activations are divided by ActivationScale before tanh and the
	// result is scaled back, so the activation is near-linear over the
	// pawn-to-rook range and saturates near king-scale inputs.
	ActivationScale = 4096

	// MaxEvaluation keeps network output outside the mate band.
	MaxEvaluation = 30000
)

const (
	versionMaterial = 1
	versionHidden   = 2
)

var netMagic = [4]byte{'N', 'N', 'U', 'E'}

var ErrFormat = errors.New("bad network format")

// Network holds the evaluator parameters. Input weights are stored
// transposed, indexed [feature*H+neuron], so a feature toggle touches a
// contiguous row; the file keeps [neuron][feature] order.
type Network struct {
	HiddenSize    int
	InputWeights  []int32
	HiddenBiases  []int32
	OutputWeights []float32
	Bias          int32
	Scale         float32
}

// FeatureIndex maps (side, piece, square) to 0..767.
func FeatureIndex(piece int, side bool, sq int) int {
	var color = 0
	if !side {
		color = 1
	}
	return color*6*64 + (piece-common.Pawn)*64 + sq
}

func (n *Network) InputWeight(feature, neuron int) int32 {
	return n.InputWeights[feature*n.HiddenSize+neuron]
}

func (n *Network) SetInputWeight(feature, neuron int, v int32) {
	n.InputWeights[feature*n.HiddenSize+neuron] = v
}

var materialValues = [common.King + 1]int32{
	common.Pawn:   100,
	common.Knight: 320,
	common.Bishop: 330,
	common.Rook:   500,
	common.Queen:  900,
	common.King:   20000,
}

// NewDefaultNetwork builds the untrained network: every neuron carries the
// static material values, output weights sum to one, so the evaluation
// reproduces a plain material count.
func NewDefaultNetwork(hiddenSize int) *Network {
	if hiddenSize <= 0 {
		hiddenSize = DefaultHiddenSize
	}
	var n = &Network{
		HiddenSize:    hiddenSize,
		InputWeights:  make([]int32, FeatureCount*hiddenSize),
		HiddenBiases:  make([]int32, hiddenSize),
		OutputWeights: make([]float32, hiddenSize),
		Bias:          0,
		Scale:         1,
	}
	for neuron := 0; neuron < hiddenSize; neuron++ {
		n.OutputWeights[neuron] = 1 / float32(hiddenSize)
	}
	for piece := common.Pawn; piece <= common.King; piece++ {
		for sq := 0; sq < 64; sq++ {
			for _, side := range [2]bool{true, false} {
				var feature = FeatureIndex(piece, side, sq)
				for neuron := 0; neuron < hiddenSize; neuron++ {
					n.SetInputWeight(feature, neuron, materialValues[piece])
				}
			}
		}
	}
	return n
}

func ReadNetwork(r io.Reader) (*Network, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if magic != netMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	var version, featureCount uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &featureCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if featureCount != FeatureCount {
		return nil, fmt.Errorf("%w: feature count %d", ErrFormat, featureCount)
	}

	switch version {
	case versionMaterial:
		return readMaterialNetwork(r)
	case versionHidden:
		return readHiddenNetwork(r)
	}
	return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
}

// Version 1 carries a single material layer; it loads as a one-neuron
// network with unit output weight.
func readMaterialNetwork(r io.Reader) (*Network, error) {
	var n = &Network{
		HiddenSize:    1,
		InputWeights:  make([]int32, FeatureCount),
		HiddenBiases:  make([]int32, 1),
		OutputWeights: []float32{1},
	}
	if err := binary.Read(r, binary.LittleEndian, &n.Bias); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n.Scale); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	var weights = make([]int16, FeatureCount)
	if err := binary.Read(r, binary.LittleEndian, weights); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for f, w := range weights {
		n.InputWeights[f] = int32(w)
	}
	return n, nil
}

func readHiddenNetwork(r io.Reader) (*Network, error) {
	var hiddenSize uint32
	if err := binary.Read(r, binary.LittleEndian, &hiddenSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if hiddenSize == 0 || hiddenSize > 4096 {
		return nil, fmt.Errorf("%w: hidden size %d", ErrFormat, hiddenSize)
	}
	var h = int(hiddenSize)
	var n = &Network{
		HiddenSize:    h,
		InputWeights:  make([]int32, FeatureCount*h),
		HiddenBiases:  make([]int32, h),
		OutputWeights: make([]float32, h),
	}
	if err := binary.Read(r, binary.LittleEndian, &n.Bias); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n.Scale); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var biases = make([]int16, h)
	if err := binary.Read(r, binary.LittleEndian, biases); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for i, b := range biases {
		n.HiddenBiases[i] = int32(b)
	}

	if err := binary.Read(r, binary.LittleEndian, n.OutputWeights); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var weights = make([]int16, h*FeatureCount)
	if err := binary.Read(r, binary.LittleEndian, weights); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for neuron := 0; neuron < h; neuron++ {
		for f := 0; f < FeatureCount; f++ {
			n.SetInputWeight(f, neuron, int32(weights[neuron*FeatureCount+f]))
		}
	}
	return n, nil
}

func (n *Network) Write(w io.Writer) error {
	if _, err := w.Write(netMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(versionHidden)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(FeatureCount)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(n.HiddenSize)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, n.Bias); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, n.Scale); err != nil {
		return err
	}

	var biases = make([]int16, n.HiddenSize)
	for i, b := range n.HiddenBiases {
		biases[i] = clampInt16(b)
	}
	if err := binary.Write(w, binary.LittleEndian, biases); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, n.OutputWeights); err != nil {
		return err
	}

	var weights = make([]int16, n.HiddenSize*FeatureCount)
	for neuron := 0; neuron < n.HiddenSize; neuron++ {
		for f := 0; f < FeatureCount; f++ {
			weights[neuron*FeatureCount+f] = clampInt16(n.InputWeight(f, neuron))
		}
	}
	return binary.Write(w, binary.LittleEndian, weights)
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func LoadNetworkFile(path string) (*Network, error) {
	var f, err = os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadNetwork(f)
}

// SaveNetworkFile writes atomically: temp file first, then rename over the
// target, with a remove-and-retry fallback for filesystems that refuse to
// replace an existing file.
func SaveNetworkFile(n *Network, path string) error {
	var tmp = path + ".tmp"
	var f, err = os.Create(tmp)
	if err != nil {
		return err
	}
	if err = n.Write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(path)
		if err = os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("replace network file: %w", err)
		}
	}
	return nil
}
