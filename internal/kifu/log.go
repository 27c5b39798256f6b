package kifu

import (
	"fmt"
	"strings"
)

// ExportKIF renders a game record as a minimal KIF-style move log: one
// numbered move per line in USI notation. This is not a full KIF writer
// (no Japanese piece/square names) — it gives a USI host's KifuTree
// boundary (spec §3) enough to replay and display a finished game, the
// scope SPEC_FULL.md §12 calls for.
func ExportKIF(rec *GameRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "開始日時: %s\n", rec.PlayedAt.Format("2006/01/02 15:04:05"))
	fmt.Fprintf(&b, "手合割: 平手\n")
	if rec.StartSFEN != "" {
		fmt.Fprintf(&b, "開始局面SFEN: %s\n", rec.StartSFEN)
	}

	for i, mv := range rec.Moves {
		fmt.Fprintf(&b, "%d %s\n", i+1, mv)
	}

	if rec.Result != "" {
		fmt.Fprintf(&b, "まで%d手で%s\n", len(rec.Moves), rec.Result)
	}

	return b.String()
}
