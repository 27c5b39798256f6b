package kifu

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

const gameKeyPrefix = "game:"

// GameRecord is a persisted game log: the starting position and the
// sequence of moves played from it, in USI move notation, plus the
// result string the USI host reported.
type GameRecord struct {
	StartSFEN string    `json:"start_sfen"`
	Moves     []string  `json:"moves"`
	Result    string    `json:"result"`
	PlayedAt  time.Time `json:"played_at"`
}

// NewGameRecord starts an empty record from startSFEN.
func NewGameRecord(startSFEN string) *GameRecord {
	return &GameRecord{StartSFEN: startSFEN, PlayedAt: time.Now()}
}

// RecordMove appends a move, in its USI string form, to the record.
func (r *GameRecord) RecordMove(move shogi.Move) {
	r.Moves = append(r.Moves, move.String())
}

// Storage wraps BadgerDB for persisted game logs (GameRecord values), the
// same embedded-KV pattern the teacher's internal/storage uses for user
// preferences and stats. Opening-book entries are not stored here.
type Storage struct {
	db *badger.DB
}

// NewStorage opens (creating if absent) a Badger database at dir.
func NewStorage(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable Badger's own logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func gameKey(id string) []byte {
	return []byte(gameKeyPrefix + id)
}

// SaveGame persists a game record under id.
func (s *Storage) SaveGame(id string, rec *GameRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(gameKey(id), data)
	})
}

// LoadGame loads a previously saved game record.
func (s *Storage) LoadGame(id string) (*GameRecord, error) {
	var rec GameRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gameKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// ListGames returns every stored game record's id.
func (s *Storage) ListGames() ([]string, error) {
	var ids []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(gameKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[len(gameKeyPrefix):])
		}
		return nil
	})

	return ids, err
}
