package pgn

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chiron-chess/chiron/internal/trainer"
	"github.com/chiron-chess/chiron/pkg/common"
)

// ResultTarget maps a PGN result tag to a white-perspective training
// target in centipawns.
func ResultTarget(result string) int {
	switch result {
	case "1-0":
		return 1000
	case "0-1":
		return -1000
	}
	return 0
}

func orientTarget(fen string, target int) int {
	if target == 0 {
		return 0
	}
	var fields = strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return -target
	}
	return target
}

// stripComments removes brace comments and parenthesized variations.
func stripComments(input string) string {
	var sb strings.Builder
	sb.Grow(len(input))
	var inBrace = false
	var parenDepth = 0
	for _, c := range input {
		switch c {
		case '{':
			inBrace = true
		case '}':
			inBrace = false
		case '(':
			parenDepth++
		case ')':
			if parenDepth > 0 {
				parenDepth--
			}
		default:
			if !inBrace && parenDepth == 0 {
				sb.WriteRune(c)
			}
		}
	}
	return sb.String()
}

func isResultToken(token string) bool {
	return token == "1-0" || token == "0-1" || token == "1/2-1/2" || token == "*"
}

// ImportFile converts mainline positions to training examples: each
// position is recorded before the move is played and targeted with the
// game result from the side to move. Malformed moves are skipped.
func ImportFile(path string, includeDraws bool) ([]trainer.Example, error) {
	var content, err = os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokens = strings.Fields(stripComments(string(content)))
	var examples []trainer.Example
	var positions []string
	var currentResult string

	var p, _ = common.NewPositionFromFEN(common.InitialPositionFen)

	var flush = func(result string) {
		var target = ResultTarget(result)
		if includeDraws || target != 0 {
			for _, fen := range positions {
				examples = append(examples, trainer.Example{
					Fen:      fen,
					TargetCp: orientTarget(fen, target),
				})
			}
		}
		positions = positions[:0]
		p, _ = common.NewPositionFromFEN(common.InitialPositionFen)
		currentResult = ""
	}

	for i := 0; i < len(tokens); i++ {
		var token = tokens[i]

		if strings.HasPrefix(token, "[") {
			if len(positions) > 0 && currentResult != "" {
				flush(currentResult)
			} else {
				positions = positions[:0]
				p, _ = common.NewPositionFromFEN(common.InitialPositionFen)
				currentResult = ""
			}

			var header = token
			for !strings.HasSuffix(header, "]") && i+1 < len(tokens) {
				i++
				header += " " + tokens[i]
			}
			var name, value, found = strings.Cut(strings.Trim(header, "[]"), " ")
			if found && name == "Result" {
				currentResult = strings.Trim(strings.TrimSpace(value), `"`)
			}
			continue
		}

		if token != "" && token[0] >= '0' && token[0] <= '9' && !isResultToken(token) {
			continue
		}
		if isResultToken(token) {
			var result = currentResult
			if result == "" {
				result = token
			}
			flush(result)
			continue
		}

		var fen = p.String()
		var move = common.ParseMoveSAN(&p, token)
		if move == common.MoveEmpty {
			continue
		}
		var u common.UndoState
		if !p.MakeMove(move, &u) {
			continue
		}
		positions = append(positions, fen)
	}

	if len(positions) > 0 {
		flush(currentResult)
	}
	return examples, nil
}

// WriteDataset imports a PGN file and writes the examples as a training
// file.
func WriteDataset(pgnPath, outputPath string, includeDraws bool) error {
	var data, err = ImportFile(pgnPath, includeDraws)
	if err != nil {
		return err
	}
	return trainer.SaveTrainingFile(outputPath, data)
}

// Game holds one finished game for PGN export.
type Game struct {
	Event       string
	Site        string
	Date        time.Time
	Round       int
	White       string
	Black       string
	Result      string
	Termination string
	PlyCount    int
	StartFen    string
	Moves       []string
}

// FormatMoves renders SAN moves with move numbers: "1. e4 e5 2. Nf3".
func FormatMoves(moves []string) string {
	var sb strings.Builder
	for i, move := range moves {
		if i%2 == 0 {
			fmt.Fprintf(&sb, "%d. ", i/2+1)
		}
		sb.WriteString(move)
		if i+1 < len(moves) {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// WriteGame emits a seven-tag-roster game plus termination metadata.
func WriteGame(w io.Writer, game Game) error {
	var date = game.Date
	if date.IsZero() {
		date = time.Now()
	}
	var startFen = game.StartFen
	if startFen == "" {
		startFen = common.InitialPositionFen
	}
	var _, err = fmt.Fprintf(w,
		"[Event \"%s\"]\n[Site \"%s\"]\n[Date \"%s\"]\n[Round \"%d\"]\n"+
			"[White \"%s\"]\n[Black \"%s\"]\n[Result \"%s\"]\n"+
			"[Termination \"%s\"]\n[PlyCount \"%d\"]\n[FEN \"%s\"]\n[SetUp \"1\"]\n\n",
		game.Event, game.Site, date.Format("2006.01.02"), game.Round,
		game.White, game.Black, game.Result,
		game.Termination, game.PlyCount, startFen)
	if err != nil {
		return err
	}
	var text = FormatMoves(game.Moves)
	if text != "" {
		text += " "
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", text, game.Result)
	return err
}
