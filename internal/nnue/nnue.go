// Package nnue implements NNUE (Efficiently Updatable Neural Network)
// evaluation for shogi positions, HalfKP-style: one feature plane per
// (own king square, piece type, piece square) for on-board pieces, plus
// one plane per (piece type, held count) for pieces in hand.
package nnue

import "github.com/SH11235/rshogi-sub004/internal/shogi"

// Network architecture constants.
const (
	NumKingSquares = 81

	// numBoardPieceTypes is the 14 shogi piece kinds minus the king,
	// which never appears as a non-king feature.
	numBoardPieceTypes = 13
	numSquaresAll       = 81

	// boardFeatureSize: piece type (13) * color (2) * square (81).
	boardFeatureSize = numBoardPieceTypes * 2 * numSquaresAll

	// handFeatureSize: one plane per held-count level, per color, summed
	// over the 7 holdable types' maximum counts (18+4+4+4+4+2+2)*2.
	handCountsPerColor = 18 + 4 + 4 + 4 + 4 + 2 + 2
	handFeatureSize    = handCountsPerColor * 2

	// perspectiveFeatureSize is the feature count per perspective before
	// multiplying by king square.
	perspectiveFeatureSize = boardFeatureSize + handFeatureSize

	// HalfKPSize is the total input feature count per perspective.
	HalfKPSize = NumKingSquares * perspectiveFeatureSize

	// Network dimensions.
	L1Size     = 256 // First hidden layer (per perspective, so 512 total)
	L2Size     = 32  // Second hidden layer
	OutputSize = 1   // Single output value

	// Quantization constants.
	InputQuantShift = 6   // Input weights scaled by 2^6 = 64
	L1QuantShift    = 6   // L1 output scaled by 2^6
	L2QuantShift    = 6   // L2 output scaled by 2^6
	OutputScale     = 600 // Final scale to centipawns
)

// ClampedReLU clamps value to [0, 127] for quantized inference.
func ClampedReLU(x int16) int8 {
	if x < 0 {
		return 0
	}
	if x > 127 {
		return 127
	}
	return int8(x)
}

// Evaluator is the main NNUE evaluator. It satisfies the engine package's
// nnueEvaluator interface (Evaluate/Push/Pop/Reset).
type Evaluator struct {
	net   *Network
	stack *AccumulatorStack
}

// NewEvaluator creates a new NNUE evaluator.
// If weightsFile is empty, uses random weights for testing.
func NewEvaluator(weightsFile string) (*Evaluator, error) {
	net := NewNetwork()

	if weightsFile != "" {
		if err := net.LoadWeights(weightsFile); err != nil {
			return nil, err
		}
	} else {
		net.InitRandom(12345) // For testing only
	}

	return &Evaluator{
		net:   net,
		stack: NewAccumulatorStack(),
	}, nil
}

// NewEvaluatorForNetwork wraps an already-loaded network with a fresh,
// independent accumulator stack — used to give each LazySMP worker its
// own push/pop state over one shared set of weights.
func NewEvaluatorForNetwork(net *Network) *Evaluator {
	return &Evaluator{net: net, stack: NewAccumulatorStack()}
}

// Evaluate returns the NNUE evaluation of pos, in centipawns from the
// side to move's perspective.
func (e *Evaluator) Evaluate(pos *shogi.Position) int {
	acc := e.stack.Current()
	if !acc.Computed {
		acc.ComputeFull(pos, e.net)
	}
	return e.net.Forward(acc, pos.SideToMove)
}

// Push saves accumulator state (call before MakeMove).
func (e *Evaluator) Push() {
	e.stack.Push()
}

// Pop restores accumulator state (call after UnmakeMove).
func (e *Evaluator) Pop() {
	e.stack.Pop()
}

// Refresh forces a full recomputation of the accumulator.
func (e *Evaluator) Refresh(pos *shogi.Position) {
	e.stack.Current().ComputeFull(pos, e.net)
}

// Reset resets the accumulator stack (for new game).
func (e *Evaluator) Reset() {
	e.stack.Reset()
}
