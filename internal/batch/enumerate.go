package batch

import (
	"io/fs"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/pathsafe"
	"secure-scrub/internal/scrub"
)

// ReasonAlreadyProcessed marks files carrying the processed-name marker.
const ReasonAlreadyProcessed = "AlreadyProcessed"

// ReasonUnreadableDirectory marks a directory whose entries could not be listed.
const ReasonUnreadableDirectory = "UnreadableDirectory"

// entry is one enumerated candidate: either eligible or already decided.
type entry struct {
	file    domain.EligibleFile
	outcome *domain.Outcome
}

// enumerate expands targets into ordered entries. Directories are walked
// recursively without following symlinks; the same canonical file is only
// listed once.
func (o *Orchestrator) enumerate(targets []string, logger *zap.Logger) []entry {
	var entries []entry
	seen := make(map[string]bool)

	add := func(raw string) {
		if scrub.IsProcessedName(filepath.Base(raw)) {
			entries = append(entries, entry{outcome: &domain.Outcome{
				Source:  raw,
				Status:  domain.StatusSkipped,
				Reason:  ReasonAlreadyProcessed,
				Message: "already carries a processed marker",
			}})
			return
		}

		file, err := o.resolver.Resolve(raw)
		if err != nil {
			entries = append(entries, entry{outcome: rejection(raw, err)})
			return
		}
		if seen[file.Path] {
			return
		}
		seen[file.Path] = true
		entries = append(entries, entry{file: file})
	}

	for _, raw := range targets {
		target := o.resolver.Classify(raw)
		if target.Kind != domain.TargetDirectory {
			add(raw)
			continue
		}

		root := target.Canonical
		if root == "" {
			root = raw
		}
		var (
			files      []string
			unreadable []entry
		)
		err := o.walkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("cannot read directory entry", zap.String("path", path), zap.Error(err))
				unreadable = append(unreadable, entry{outcome: &domain.Outcome{
					Source:  path,
					Status:  domain.StatusFailed,
					Reason:  ReasonUnreadableDirectory,
					Message: err.Error(),
				}})
				if d != nil && d.IsDir() && path != root {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			logger.Warn("directory walk aborted", zap.String("path", root), zap.Error(err))
		}
		sort.Strings(files)
		for _, path := range files {
			add(path)
		}
		entries = append(entries, unreadable...)
	}
	return entries
}

// rejection turns a resolver error into a Skipped or Failed outcome.
func rejection(raw string, err error) *domain.Outcome {
	outcome := &domain.Outcome{
		Source:  raw,
		Status:  domain.StatusFailed,
		Message: err.Error(),
	}
	if reason, ok := pathsafe.ReasonOf(err); ok {
		outcome.Reason = string(reason)
		if reason.Skippable() {
			outcome.Status = domain.StatusSkipped
		}
	}
	return outcome
}
