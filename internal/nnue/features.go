package nnue

import "github.com/SH11235/rshogi-sub004/internal/shogi"

// boardPieceIndex maps a non-king piece type to its 0-based slot among
// the 13 board piece types (7 base pieces plus their 6 promoted forms;
// the king never appears as a feature, mirroring the teacher's HalfKP
// exclusion of the king square it already encodes separately).
var boardPieceIndex = map[shogi.PieceType]int{
	shogi.Pawn:    0,
	shogi.Lance:   1,
	shogi.Knight:  2,
	shogi.Silver:  3,
	shogi.Gold:    4,
	shogi.Bishop:  5,
	shogi.Rook:    6,
	shogi.PPawn:   7,
	shogi.PLance:  8,
	shogi.PKnight: 9,
	shogi.PSilver: 10,
	shogi.PBishop: 11,
	shogi.PRook:   12,
}

// handPieceMax is the largest count of each holdable type a hand can
// carry in a legal game (four each of lances, knights, silvers and golds;
// pawns, rooks and bishops cap at eighteen/two/two).
var handPieceMax = map[shogi.PieceType]int{
	shogi.Pawn:   18,
	shogi.Lance:  4,
	shogi.Knight: 4,
	shogi.Silver: 4,
	shogi.Gold:   4,
	shogi.Bishop: 2,
	shogi.Rook:   2,
}

// handPieceOffset is each holdable type's starting slot within one
// color's block of hand-feature planes, in shogi.HandTypes order.
var handPieceOffset = buildHandPieceOffsets()

func buildHandPieceOffsets() map[shogi.PieceType]int {
	offsets := make(map[shogi.PieceType]int, len(shogi.HandTypes))
	n := 0
	for _, pt := range shogi.HandTypes {
		offsets[pt] = n
		n += handPieceMax[pt]
	}
	return offsets
}

// halfKPIndex computes the feature index of an on-board piece from one
// perspective. perspective's own king square mirrors the board the same
// way the teacher's chess HalfKP mirrored for black.
func halfKPIndex(perspective shogi.Color, kingSq shogi.Square, pt shogi.PieceType, pieceColor shogi.Color, sq shogi.Square) int {
	pi, ok := boardPieceIndex[pt]
	if !ok {
		return -1
	}

	ks := int(kingSq)
	s := int(sq)
	pc := pieceColor
	if perspective == shogi.White {
		ks = int(kingSq.Mirror())
		s = int(sq.Mirror())
		pc = pieceColor.Other()
	}

	colorOffset := 0
	if pc == shogi.White {
		colorOffset = numBoardPieceTypes
	}

	feature := (colorOffset+pi)*numSquaresAll + s
	return ks*perspectiveFeatureSize + feature
}

// halfKPHandIndex computes the feature index for holding the count-th
// copy of pt in hand (count is 1-based: holding 2 silvers activates both
// the count-1 and count-2 planes, a thermometer code so the network can
// read "at least N held" linearly).
func halfKPHandIndex(perspective shogi.Color, kingSq shogi.Square, pt shogi.PieceType, handColor shogi.Color, count int) int {
	offset, ok := handPieceOffset[pt]
	if !ok {
		return -1
	}
	maxN := handPieceMax[pt]
	if count <= 0 || count > maxN {
		return -1
	}

	ks := int(kingSq)
	pc := handColor
	if perspective == shogi.White {
		ks = int(kingSq.Mirror())
		pc = handColor.Other()
	}

	colorOffset := 0
	if pc == shogi.White {
		colorOffset = handCountsPerColor
	}

	feature := boardFeatureSize + colorOffset + offset + (count - 1)
	return ks*perspectiveFeatureSize + feature
}

// GetActiveFeatures returns every active feature index for a position,
// from the black and the white perspective.
func GetActiveFeatures(pos *shogi.Position) (black, white []int) {
	black = make([]int, 0, 48)
	white = make([]int, 0, 48)

	blackKingSq := pos.KingSquare[shogi.Black]
	whiteKingSq := pos.KingSquare[shogi.White]

	for color := shogi.Black; color <= shogi.White; color++ {
		for pt := shogi.PieceType(0); pt < shogi.NoPieceType; pt++ {
			if pt == shogi.King {
				continue
			}
			pieces := pos.Pieces[color][pt]
			for pieces.More() {
				sq := pieces.PopLSB()

				if idx := halfKPIndex(shogi.Black, blackKingSq, pt, color, sq); idx >= 0 && idx < HalfKPSize {
					black = append(black, idx)
				}
				if idx := halfKPIndex(shogi.White, whiteKingSq, pt, color, sq); idx >= 0 && idx < HalfKPSize {
					white = append(white, idx)
				}
			}
		}
	}

	for _, pt := range shogi.HandTypes {
		for _, color := range [2]shogi.Color{shogi.Black, shogi.White} {
			count := pos.Hands[color].Count(pt)
			for n := 1; n <= count; n++ {
				if idx := halfKPHandIndex(shogi.Black, blackKingSq, pt, color, n); idx >= 0 && idx < HalfKPSize {
					black = append(black, idx)
				}
				if idx := halfKPHandIndex(shogi.White, whiteKingSq, pt, color, n); idx >= 0 && idx < HalfKPSize {
					white = append(white, idx)
				}
			}
		}
	}

	return black, white
}
