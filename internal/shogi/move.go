package shogi

import "fmt"

// Move encodes a shogi move in 32 bits (spec §3: "Encodable as a 16-32
// bit integer"):
//   bits 0-6:   to square (0-80)
//   bits 7-13:  from square (0-80), or NoSquare (81) for a drop
//   bit  14:    promote flag
//   bit  15:    drop flag
//   bits 16-18: drop piece type (index into Hand, valid only if drop flag set)
type Move uint32

const (
	moveToMask     Move = 0x7F
	moveFromShift       = 7
	moveFromMask   Move = 0x7F << moveFromShift
	movePromoteBit Move = 1 << 14
	moveDropBit    Move = 1 << 15
	moveDropShift       = 16
	moveDropMask   Move = 0x7 << moveDropShift
)

// NoMove represents an absent/null move.
const NoMove Move = 0

// NewMove creates a normal board move, optionally promoting.
func NewMove(from, to Square, promote bool) Move {
	m := Move(to) | Move(from)<<moveFromShift
	if promote {
		m |= movePromoteBit
	}
	return m
}

// NewDrop creates a drop move of piece type pt onto to.
func NewDrop(pt PieceType, to Square) Move {
	return Move(to) | Move(NoSquare)<<moveFromShift | moveDropBit | Move(pt)<<moveDropShift
}

// To returns the destination square.
func (m Move) To() Square { return Square(m & moveToMask) }

// From returns the origin square (NoSquare for drops).
func (m Move) From() Square { return Square((m & moveFromMask) >> moveFromShift) }

// IsPromotion reports whether this move promotes the moved piece.
func (m Move) IsPromotion() bool { return m&movePromoteBit != 0 }

// IsDrop reports whether this move drops a piece from hand.
func (m Move) IsDrop() bool { return m&moveDropBit != 0 }

// DropPiece returns the piece type being dropped (only valid if IsDrop()).
func (m Move) DropPiece() PieceType { return PieceType((m & moveDropMask) >> moveDropShift) }

// IsCapture reports whether the move captures a piece on the destination
// square, given the position it is about to be played in.
func (m Move) IsCapture(pos *Position) bool {
	if m.IsDrop() {
		return false
	}
	return pos.PieceAt(m.To()) != NoPiece
}

// IsQuiet reports whether the move is neither a capture nor a promotion.
func (m Move) IsQuiet(pos *Position) bool {
	return !m.IsCapture(pos) && !m.IsPromotion()
}

// String renders USI move notation: "7g7f", "8c8b+", or a drop "P*5e".
func (m Move) String() string {
	if m == NoMove {
		return "resign"
	}
	if m.IsDrop() {
		pt := m.DropPiece()
		if pt >= PieceType(len(baseSFENChars)) {
			return "0000"
		}
		return fmt.Sprintf("%c*%s", baseSFENChars[pt], m.To())
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += "+"
	}
	return s
}

var dropCharToType = map[byte]PieceType{
	'P': Pawn, 'L': Lance, 'N': Knight, 'S': Silver, 'G': Gold, 'B': Bishop, 'R': Rook,
}

// ParseMove parses USI move notation into a Move. USI moves are fully
// specified, so no position is needed; callers that care validate the
// result against the legal moves themselves.
func ParseMove(s string) (Move, error) {
	if len(s) < 4 {
		return NoMove, fmt.Errorf("invalid move string: %q", s)
	}
	if s[1] == '*' {
		pt, ok := dropCharToType[s[0]]
		if !ok {
			return NoMove, fmt.Errorf("invalid drop piece: %q", s)
		}
		to, err := ParseSquare(s[2:4])
		if err != nil {
			return NoMove, err
		}
		return NewDrop(pt, to), nil
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove, err
	}
	promote := len(s) == 5 && s[4] == '+'
	return NewMove(from, to, promote), nil
}

// MaxMoves bounds the number of legal+pseudo-legal moves in any reachable
// shogi position; comfortably above documented worst cases (~600).
const MaxMoves = 700

// MoveList is a fixed-size list of moves, avoiding per-node allocation.
type MoveList struct {
	moves [MaxMoves]Move
	count int
}

func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

func (ml *MoveList) Len() int         { return ml.count }
func (ml *MoveList) Get(i int) Move   { return ml.moves[i] }
func (ml *MoveList) Set(i int, m Move) { ml.moves[i] = m }
func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
}
func (ml *MoveList) Clear() { ml.count = 0 }

func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}

func (ml *MoveList) Slice() []Move { return ml.moves[:ml.count] }

// UndoInfo stores everything needed to undo a move in O(1).
type UndoInfo struct {
	CapturedPiece Piece
	Hash          uint64
	CheckersLo    Bitboard
	KingSquare    [2]Square
	Hand          [2]Hand
}
