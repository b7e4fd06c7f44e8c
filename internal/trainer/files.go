package trainer

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// LoadTrainingFile reads "FEN|cp" lines. Blank lines and lines without a
// separator or a parseable score are skipped.
func LoadTrainingFile(path string) ([]Example, error) {
	var f, err = os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data []Example
	var scanner = bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line = scanner.Text()
		if line == "" {
			continue
		}
		var fen, score, found = strings.Cut(line, "|")
		if !found {
			continue
		}
		var target, parseErr = strconv.Atoi(strings.TrimSpace(score))
		if parseErr != nil {
			continue
		}
		data = append(data, Example{Fen: fen, TargetCp: target})
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

// LoadTrainingFiles ingests several files in parallel and concatenates the
// examples in argument order.
func LoadTrainingFiles(paths []string) ([]Example, error) {
	var chunks = make([][]Example, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			var data, err = LoadTrainingFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			chunks[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var data []Example
	for _, chunk := range chunks {
		data = append(data, chunk...)
	}
	return data, nil
}

func SaveTrainingFile(path string, data []Example) error {
	var f, err = os.Create(path)
	if err != nil {
		return err
	}
	var w = bufio.NewWriter(f)
	for _, example := range data {
		fmt.Fprintf(w, "%s|%d\n", example.Fen, example.TargetCp)
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
