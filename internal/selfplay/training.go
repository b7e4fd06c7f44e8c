package selfplay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chiron-chess/chiron/internal/pgn"
	"github.com/chiron-chess/chiron/internal/trainer"
)

// handleTraining folds a finished game into the training buffer. With a
// teacher configured the positions queue up for annotation instead of
// taking the game result as their target. Annotation and checkpoint
// failures are fatal to the run.
func (o *Orchestrator) handleTraining(ctx context.Context, result Result) error {
	if !o.config.Training.Enabled {
		return nil
	}

	o.trainMu.Lock()
	defer o.trainMu.Unlock()

	if o.teacherEngine != nil {
		o.teacherQueue = append(o.teacherQueue, result.StartFen)
		o.teacherQueue = append(o.teacherQueue, result.Fens...)
		o.positionsCollected += 1 + len(result.Fens)
		if err := o.processTeacherQueueLocked(ctx, false); err != nil {
			return err
		}
	} else {
		var target = pgn.ResultTarget(result.Result)
		o.trainingBuffer = append(o.trainingBuffer, trainer.Example{Fen: result.StartFen, TargetCp: target})
		for _, fen := range result.Fens {
			o.trainingBuffer = append(o.trainingBuffer, trainer.Example{Fen: fen, TargetCp: target})
		}
		o.positionsCollected += 1 + len(result.Fens)
	}

	o.logVerbose("[Train] Collected %d positions (buffer %d/%d, total collected %d)",
		1+len(result.Fens), len(o.trainingBuffer), o.config.Training.BatchSize, o.positionsCollected)
	return o.trainBufferLocked(false)
}

// processTeacherQueueLocked annotates queued positions chunk by chunk. A
// failed chunk stays queued and aborts the training phase.
func (o *Orchestrator) processTeacherQueueLocked(ctx context.Context, force bool) error {
	var chunk = max(1, o.config.TeacherChunk)
	for len(o.teacherQueue) > 0 {
		if !force && len(o.teacherQueue) < chunk {
			return nil
		}
		var n = min(chunk, len(o.teacherQueue))
		var batch = o.teacherQueue[:n]
		var scores, err = o.teacherEngine.Evaluate(ctx, batch)
		if err != nil {
			return fmt.Errorf("annotate %d positions: %w", n, err)
		}
		for i, fen := range batch {
			o.trainingBuffer = append(o.trainingBuffer, trainer.Example{Fen: fen, TargetCp: scores[i]})
		}
		o.teacherQueue = o.teacherQueue[n:]
	}
	return nil
}

// trainBufferLocked runs a batch once enough positions are buffered and
// checkpoints the updated network. A checkpoint that cannot be written
// aborts the run rather than letting it finish with stale weights.
func (o *Orchestrator) trainBufferLocked(force bool) error {
	var batchSize = max(1, o.config.Training.BatchSize)
	if len(o.trainingBuffer) == 0 {
		return nil
	}
	if !force && len(o.trainingBuffer) < batchSize {
		return nil
	}

	var batch = len(o.trainingBuffer)
	o.trainer.TrainBatch(o.trainingBuffer, o.parameters)
	o.trainingBuffer = o.trainingBuffer[:0]
	o.positionsTrained += batch
	o.trainingIteration++

	var outputPath = o.config.Training.OutputPath
	if outputPath != "" {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return fmt.Errorf("training checkpoint: %w", err)
		}
		if err := o.parameters.Save(outputPath); err != nil {
			return fmt.Errorf("training checkpoint: %w", err)
		}
		o.configMu.Lock()
		o.config.White.NetworkPath = outputPath
		o.config.Black.NetworkPath = outputPath
		o.configMu.Unlock()

		if dir := o.config.Training.HistoryDir; dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("training snapshot: %w", err)
			}
			var snapshot = filepath.Join(dir, fmt.Sprintf("%s-iter%06d%s",
				o.historyPrefix, o.trainingIteration, o.historyExt))
			if err := o.parameters.Save(snapshot); err != nil {
				return fmt.Errorf("training snapshot: %w", err)
			}
			o.logVerbose("[Train] Snapshot saved to %s", snapshot)
		}
	}
	o.logVerbose("[Train] Iteration %d trained on %d positions (total trained %d)",
		o.trainingIteration, batch, o.positionsTrained)
	return nil
}

// finalizeTraining drains the teacher queue and trains on whatever is left
// in the buffer at the end of a run.
func (o *Orchestrator) finalizeTraining(ctx context.Context) error {
	if !o.config.Training.Enabled {
		return nil
	}
	o.trainMu.Lock()
	defer o.trainMu.Unlock()
	if o.teacherEngine != nil {
		if err := o.processTeacherQueueLocked(ctx, true); err != nil {
			return err
		}
	}
	return o.trainBufferLocked(true)
}

// detectHistoryIteration resumes the snapshot counter from the newest
// checkpoint already in the history directory.
func (o *Orchestrator) detectHistoryIteration() int {
	var dir = o.config.Training.HistoryDir
	if dir == "" {
		return 0
	}
	var entries, err = os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var prefix = o.historyPrefix + "-iter"
	var maxIter = 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var name = entry.Name()
		if o.historyExt != "" && filepath.Ext(name) != o.historyExt {
			continue
		}
		var stem = strings.TrimSuffix(name, filepath.Ext(name))
		if !strings.HasPrefix(stem, prefix) {
			continue
		}
		var value, parseErr = strconv.Atoi(stem[len(prefix):])
		if parseErr != nil {
			continue
		}
		if value > maxIter {
			maxIter = value
		}
	}
	return maxIter
}
