package selfplay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var ErrTeacher = errors.New("teacher engine")

// teacherAnnotator scores positions for training targets; a failure is
// fatal to the training phase that requested it.
type teacherAnnotator interface {
	Evaluate(ctx context.Context, fens []string) ([]int, error)
}

// TeacherConfig points at an external UCI engine used as an offline
// annotator for training targets.
type TeacherConfig struct {
	EnginePath string
	Depth      int
	Threads    int
}

type TeacherEngine struct {
	config TeacherConfig
}

func NewTeacherEngine(config TeacherConfig) *TeacherEngine {
	if config.Depth <= 0 {
		config.Depth = 20
	}
	if config.Threads <= 0 {
		config.Threads = 1
	}
	return &TeacherEngine{config: config}
}

func (t *TeacherEngine) script(fens []string) string {
	var sb strings.Builder
	sb.WriteString("uci\n")
	if t.config.Threads > 1 {
		fmt.Fprintf(&sb, "setoption name Threads value %d\n", t.config.Threads)
	}
	sb.WriteString("isready\n")
	for _, fen := range fens {
		fmt.Fprintf(&sb, "position fen %s\ngo depth %d\n", fen, t.config.Depth)
	}
	sb.WriteString("quit\n")
	return sb.String()
}

// Evaluate runs the engine over a batch of positions and returns one score
// per FEN, in centipawns from the side to move. Mate scores are folded
// into the centipawn scale near the mate value.
func (t *TeacherEngine) Evaluate(ctx context.Context, fens []string) ([]int, error) {
	if t.config.EnginePath == "" {
		return nil, fmt.Errorf("%w: path not configured", ErrTeacher)
	}
	if len(fens) == 0 {
		return nil, nil
	}

	var cmd = exec.CommandContext(ctx, t.config.EnginePath)
	cmd.Stdin = strings.NewReader(t.script(fens))
	var output bytes.Buffer
	cmd.Stdout = &output
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTeacher, err)
	}

	var scores = parseTeacherOutput(&output, len(fens))
	if len(scores) != len(fens) {
		return nil, fmt.Errorf("%w: %d evaluations for %d positions",
			ErrTeacher, len(scores), len(fens))
	}
	return scores, nil
}

func (t *TeacherEngine) EvaluateSingle(ctx context.Context, fen string) (int, error) {
	var scores, err = t.Evaluate(ctx, []string{fen})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

const teacherMateValue = 32000

func parseTeacherOutput(r *bytes.Buffer, expected int) []int {
	var scores []int
	var current = 0
	var haveScore = false
	var scanner = bufio.NewScanner(r)
	for scanner.Scan() {
		var line = scanner.Text()
		if strings.HasPrefix(line, "info") {
			if score, ok := parseScoreTokens(strings.Fields(line)); ok {
				current = score
				haveScore = true
			}
		}
		if strings.HasPrefix(line, "bestmove") {
			if haveScore {
				scores = append(scores, current)
			} else {
				scores = append(scores, 0)
			}
			current = 0
			haveScore = false
			if len(scores) == expected {
				break
			}
		}
	}
	return scores
}

func parseScoreTokens(tokens []string) (int, bool) {
	for i := 0; i+2 < len(tokens); i++ {
		if tokens[i] != "score" {
			continue
		}
		var value, err = strconv.Atoi(tokens[i+2])
		if err != nil {
			continue
		}
		switch tokens[i+1] {
		case "cp":
			return value, true
		case "mate":
			var sign = 1
			if value < 0 {
				sign = -1
				value = -value
			}
			return sign * (teacherMateValue - value*100), true
		}
	}
	return 0, false
}
