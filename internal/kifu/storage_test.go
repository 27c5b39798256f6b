package kifu

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

func TestStorageSaveAndLoadGame(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "rshogi-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbDir := filepath.Join(tmpDir, "db")
	s, err := NewStorage(dbDir)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer s.Close()

	rec := NewGameRecord(shogi.StartSFEN)
	rec.RecordMove(shogi.NewMove(shogi.NewSquare(7, 7), shogi.NewSquare(7, 6), false))
	rec.Result = "black_win"

	if err := s.SaveGame("game1", rec); err != nil {
		t.Fatalf("SaveGame failed: %v", err)
	}

	loaded, err := s.LoadGame("game1")
	if err != nil {
		t.Fatalf("LoadGame failed: %v", err)
	}

	if loaded.StartSFEN != rec.StartSFEN {
		t.Errorf("StartSFEN mismatch: got %q, want %q", loaded.StartSFEN, rec.StartSFEN)
	}
	if len(loaded.Moves) != 1 || loaded.Moves[0] != "7g7f" {
		t.Errorf("Moves mismatch: got %v", loaded.Moves)
	}
	if loaded.Result != "black_win" {
		t.Errorf("Result mismatch: got %q", loaded.Result)
	}
}

func TestStorageListGames(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "rshogi-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := NewStorage(filepath.Join(tmpDir, "db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer s.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveGame(id, NewGameRecord(shogi.StartSFEN)); err != nil {
			t.Fatalf("SaveGame(%s) failed: %v", id, err)
		}
	}

	ids, err := s.ListGames()
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("Expected 3 games, got %d", len(ids))
	}
}

func TestExportKIF(t *testing.T) {
	rec := NewGameRecord(shogi.StartSFEN)
	rec.RecordMove(shogi.NewMove(shogi.NewSquare(7, 7), shogi.NewSquare(7, 6), false))
	rec.Result = "black_win"

	kif := ExportKIF(rec)
	if kif == "" {
		t.Fatal("ExportKIF returned empty string")
	}
	if !strings.Contains(kif, "1 7g7f") || !strings.Contains(kif, shogi.StartSFEN) {
		t.Errorf("ExportKIF missing expected content:\n%s", kif)
	}
}
