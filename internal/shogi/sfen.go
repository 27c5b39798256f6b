package shogi

import (
	"fmt"
	"strconv"
	"strings"
)

// StartSFEN is the standard shogi starting position.
const StartSFEN = "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"

var sfenBaseType = map[byte]PieceType{
	'P': Pawn, 'L': Lance, 'N': Knight, 'S': Silver, 'G': Gold,
	'B': Bishop, 'R': Rook, 'K': King,
}

// FromSFEN parses a shogi position literal (board/side/hand/movenumber),
// grounded on the teacher's ParseFEN round-trip shape (board/fen.go),
// re-expressed for SFEN's board order (rank 1 first, files 9 to 1 within
// a rank) and hand field.
func FromSFEN(s string) (*Position, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid sfen: %q", s)
	}

	p := &Position{}
	p.Clear()

	if err := parseSFENBoard(p, fields[0]); err != nil {
		return nil, err
	}

	switch fields[1] {
	case "b":
		p.SideToMove = Black
	case "w":
		p.SideToMove = White
	default:
		return nil, fmt.Errorf("invalid side to move: %q", fields[1])
	}

	if err := parseSFENHand(p, fields[2]); err != nil {
		return nil, err
	}

	p.Ply = 1
	if len(fields) >= 4 {
		if n, err := strconv.Atoi(fields[3]); err == nil {
			p.Ply = n
		}
	}

	p.recomputeHash()
	p.UpdateCheckers()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sfen %q: %w", s, err)
	}
	return p, nil
}

func parseSFENBoard(p *Position, board string) error {
	ranks := strings.Split(board, "/")
	if len(ranks) != 9 {
		return fmt.Errorf("invalid sfen board (expected 9 ranks): %q", board)
	}

	for i, rankStr := range ranks {
		rank := i + 1 // SFEN lists rank 1 (top) first
		file := 9     // SFEN lists file 9 (left) first
		promoted := false

		for j := 0; j < len(rankStr); j++ {
			ch := rankStr[j]
			switch {
			case ch == '+':
				promoted = true
			case ch >= '1' && ch <= '9':
				n := int(ch - '0')
				file -= n
				promoted = false
			default:
				base, ok := sfenBaseType[byte(strings.ToUpper(string(ch))[0])]
				if !ok {
					return fmt.Errorf("invalid sfen piece char: %q", string(ch))
				}
				color := Black
				if ch >= 'a' && ch <= 'z' {
					color = White
				}
				pt := base
				if promoted {
					if !pt.Promotes() {
						return fmt.Errorf("piece %q cannot promote", string(ch))
					}
					pt = pt.Promoted()
				}
				if file < 1 {
					return fmt.Errorf("sfen rank overflow: %q", rankStr)
				}
				p.setPiece(NewPiece(pt, color), NewSquare(file, rank))
				file--
				promoted = false
			}
		}
	}
	return nil
}

func parseSFENHand(p *Position, hand string) error {
	if hand == "-" {
		return nil
	}
	count := 0
	for i := 0; i < len(hand); i++ {
		ch := hand[i]
		if ch >= '0' && ch <= '9' {
			count = count*10 + int(ch-'0')
			continue
		}
		base, ok := sfenBaseType[byte(strings.ToUpper(string(ch))[0])]
		if !ok || base == King {
			return fmt.Errorf("invalid sfen hand piece: %q", string(ch))
		}
		n := count
		if n == 0 {
			n = 1
		}
		color := Black
		if ch >= 'a' && ch <= 'z' {
			color = White
		}
		p.Hands[color][base] += int8(n)
		count = 0
	}
	return nil
}

func (p *Position) recomputeHash() {
	var hash uint64
	for c := Black; c <= White; c++ {
		for pt := Pawn; pt < NoPieceType; pt++ {
			bb := p.Pieces[c][pt]
			for bb.More() {
				sq := bb.PopLSB()
				hash ^= ZobristPiece(c, pt, sq)
			}
		}
		for pt := 0; pt < 7; pt++ {
			n := p.Hands[c].Count(PieceType(pt))
			for i := 1; i <= n; i++ {
				hash ^= ZobristHandDelta(c, PieceType(pt), i)
			}
		}
	}
	if p.SideToMove == White {
		hash ^= ZobristSideToMove()
	}
	p.Hash = hash
}

// SFEN serializes the position back to SFEN notation.
func (p *Position) SFEN() string {
	var sb strings.Builder
	for rank := 1; rank <= 9; rank++ {
		empty := 0
		for file := 9; file >= 1; file-- {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(piece.SFENChar())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank != 9 {
			sb.WriteByte('/')
		}
	}

	sb.WriteByte(' ')
	if p.SideToMove == Black {
		sb.WriteByte('b')
	} else {
		sb.WriteByte('w')
	}

	sb.WriteByte(' ')
	handStr := p.handSFEN()
	if handStr == "" {
		sb.WriteByte('-')
	} else {
		sb.WriteString(handStr)
	}

	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.Ply))

	return sb.String()
}

func (p *Position) handSFEN() string {
	var sb strings.Builder
	// Conventional SFEN hand order: Black R,B,G,S,N,L,P then White.
	order := [...]PieceType{Rook, Bishop, Gold, Silver, Knight, Lance, Pawn}
	for _, c := range [2]Color{Black, White} {
		for _, pt := range order {
			n := p.Hands[c].Count(pt)
			if n == 0 {
				continue
			}
			if n > 1 {
				sb.WriteString(strconv.Itoa(n))
			}
			ch := baseSFENChars[pt]
			if c == White {
				ch += 'a' - 'A'
			}
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}
