package pgn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chiron-chess/chiron/pkg/common"
)

func writeTempPGN(t *testing.T, content string) string {
	t.Helper()
	var path = filepath.Join(t.TempDir(), "games.pgn")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportOrientsTargets(t *testing.T) {
	var path = writeTempPGN(t, `[Event "Test"]
[Result "1-0"]

1. e4 e5 2. Qh5 Ke7 3. Qxe5# 1-0
`)
	var examples, err = ImportFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 5 {
		t.Fatal("example count:", len(examples))
	}
	if examples[0].Fen != common.InitialPositionFen {
		t.Error("first example must be the initial position")
	}
	for i, example := range examples {
		var want = 1000
		if i%2 == 1 {
			want = -1000
		}
		if example.TargetCp != want {
			t.Error("example", i, "target", example.TargetCp, "want", want)
		}
	}
}

func TestImportSkipsDraws(t *testing.T) {
	var path = writeTempPGN(t, `[Event "Test"]
[Result "1/2-1/2"]

1. e4 e5 1/2-1/2

[Event "Test"]
[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1
`)
	var examples, err = ImportFile(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 4 {
		t.Fatal("draw positions not skipped:", len(examples))
	}
	// black won: white-to-move positions carry the negative target
	if examples[0].TargetCp != -1000 || examples[1].TargetCp != 1000 {
		t.Error("targets:", examples[0].TargetCp, examples[1].TargetCp)
	}
}

func TestImportStripsCommentsAndVariations(t *testing.T) {
	var path = writeTempPGN(t, `[Event "Test"]
[Result "1-0"]

1. e4 {best by test} e5 (1... c5 2. Nf3) 2. Nf3 1-0
`)
	var examples, err = ImportFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 3 {
		t.Error("mainline count with comments stripped:", len(examples))
	}
}

func TestWriteDatasetRoundTrip(t *testing.T) {
	var pgnPath = writeTempPGN(t, `[Event "Test"]
[Result "1-0"]

1. e4 e5 1-0
`)
	var out = filepath.Join(t.TempDir(), "data.txt")
	if err := WriteDataset(pgnPath, out, true); err != nil {
		t.Fatal(err)
	}
	var content, err = os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var lines = strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatal("dataset lines:", len(lines))
	}
	if !strings.HasSuffix(lines[0], "|1000") || !strings.HasSuffix(lines[1], "|-1000") {
		t.Error("dataset targets:", lines)
	}
}

func TestWriteGame(t *testing.T) {
	var sb strings.Builder
	var game = Game{
		Event:       "Chiron Self-Play",
		Site:        "Local",
		Date:        time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		Round:       3,
		White:       "candidate",
		Black:       "baseline",
		Result:      "1-0",
		Termination: "checkmate",
		PlyCount:    5,
		Moves:       []string{"e4", "e5", "Qh5", "Ke7", "Qxe5#"},
	}
	if err := WriteGame(&sb, game); err != nil {
		t.Fatal(err)
	}
	var text = sb.String()
	for _, want := range []string{
		`[Event "Chiron Self-Play"]`,
		`[Date "2026.08.24"]`,
		`[Round "3"]`,
		`[Result "1-0"]`,
		`[Termination "checkmate"]`,
		`[PlyCount "5"]`,
		`[SetUp "1"]`,
		"1. e4 e5 2. Qh5 Ke7 3. Qxe5# 1-0",
	} {
		if !strings.Contains(text, want) {
			t.Error("missing", want)
		}
	}
	// the emitted movetext must reimport cleanly
	var path = writeTempPGN(t, text)
	var examples, err = ImportFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 5 {
		t.Error("reimport count:", len(examples))
	}
}
