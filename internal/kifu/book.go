package kifu

import (
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"sort"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// BookEntry is a single opening-book line: one candidate move at a
// position, weighted the way a joseki book ranks common continuations.
type BookEntry struct {
	Move   shogi.Move
	Weight uint16
}

// Book is an in-memory opening book keyed by Zobrist position hash.
type Book struct {
	entries map[uint64][]BookEntry
}

// New creates an empty book.
func New() *Book {
	return &Book{entries: make(map[uint64][]BookEntry)}
}

// Load reads this module's joseki book format from filename. Unlike the
// teacher's Polyglot reader, entries are keyed by this engine's own
// Zobrist hash and store the move's native encoding directly, since there
// is no shogi equivalent of the Polyglot format to stay compatible with.
//
// Record layout (14 bytes, big-endian):
//
//	8 bytes  position hash
//	4 bytes  encoded move (shogi.Move)
//	2 bytes  weight
func Load(filename string) (*Book, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader reads the book format from an arbitrary reader.
func LoadReader(r io.Reader) (*Book, error) {
	b := New()

	var rec [14]byte
	for {
		_, err := io.ReadFull(r, rec[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		key := binary.BigEndian.Uint64(rec[0:8])
		move := shogi.Move(binary.BigEndian.Uint32(rec[8:12]))
		weight := binary.BigEndian.Uint16(rec[12:14])

		if move != shogi.NoMove {
			b.entries[key] = append(b.entries[key], BookEntry{Move: move, Weight: weight})
		}
	}

	return b, nil
}

// Probe looks up pos in the book and returns a move chosen by weighted
// random selection among the position's entries.
func (b *Book) Probe(pos *shogi.Position) (shogi.Move, bool) {
	if b == nil {
		return shogi.NoMove, false
	}

	entries, ok := b.entries[pos.Hash]
	if !ok || len(entries) == 0 {
		return shogi.NoMove, false
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Weight > entries[j].Weight
	})

	totalWeight := uint32(0)
	for _, e := range entries {
		totalWeight += uint32(e.Weight)
	}

	if totalWeight == 0 {
		return verifyAndConvert(pos, entries[0].Move), true
	}

	r := rand.Uint32() % totalWeight
	cumulative := uint32(0)
	for _, e := range entries {
		cumulative += uint32(e.Weight)
		if r < cumulative {
			return verifyAndConvert(pos, e.Move), true
		}
	}

	return verifyAndConvert(pos, entries[0].Move), true
}

// ProbeAll returns every book move for pos, sorted by weight descending.
func (b *Book) ProbeAll(pos *shogi.Position) []BookEntry {
	if b == nil {
		return nil
	}

	entries, ok := b.entries[pos.Hash]
	if !ok {
		return nil
	}

	result := make([]BookEntry, len(entries))
	copy(result, entries)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Weight > result[j].Weight
	})

	return result
}

// verifyAndConvert re-resolves a stored move against the position's
// current legal moves, since a stale book entry is not trusted blindly.
func verifyAndConvert(pos *shogi.Position, move shogi.Move) shogi.Move {
	legalMoves := pos.GenerateLegalMoves()
	for i := 0; i < legalMoves.Len(); i++ {
		if legalMoves.Get(i) == move {
			return move
		}
	}
	return shogi.NoMove
}

// Size returns the number of distinct positions the book has entries for.
func (b *Book) Size() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}
