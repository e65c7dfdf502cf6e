package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"secure-scrub/internal/domain"
)

// ErrUnknownFile is returned when transitioning a file that was never queued.
var ErrUnknownFile = errors.New("file not tracked")

// Tracker holds the pipeline stage of every file in one batch run.
type Tracker struct {
	mu     sync.RWMutex
	stages map[string]domain.FileStage
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stages: make(map[string]domain.FileStage)}
}

// Queue registers path in queued state. Re-queueing a finished file is an error.
func (t *Tracker) Queue(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.stages[path]; ok && current != domain.FileStageQueued {
		return fmt.Errorf("file already %s: %s", current, path)
	}
	t.stages[path] = domain.FileStageQueued
	return nil
}

// Transition validates and applies a stage change for path.
func (t *Tracker) Transition(path string, stage domain.FileStage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.stages[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	if current == stage {
		return nil
	}
	if !isValidTransition(current, stage) {
		return fmt.Errorf("invalid transition for %s: %s -> %s", path, current, stage)
	}
	t.stages[path] = stage
	return nil
}

// Stage returns the current stage of path.
func (t *Tracker) Stage(path string) (domain.FileStage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stage, ok := t.stages[path]
	return stage, ok
}

// Pending lists files that have not reached a terminal stage, sorted.
func (t *Tracker) Pending() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for path, stage := range t.stages {
		if !stage.Terminal() {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// isValidTransition enforces the allowed per-file state machine edges.
func isValidTransition(from, to domain.FileStage) bool {
	if from.Terminal() {
		return false
	}
	if to == domain.FileStageFailed {
		return true
	}
	switch from {
	case domain.FileStageQueued:
		return to == domain.FileStageCleaning || to == domain.FileStageSkipped
	case domain.FileStageCleaning:
		return to == domain.FileStageOptimizing || to == domain.FileStageFinalizing
	case domain.FileStageOptimizing:
		return to == domain.FileStageFinalizing
	case domain.FileStageFinalizing:
		return to == domain.FileStageDone
	default:
		return false
	}
}
