package batch

import (
	"errors"
	"fmt"
	"strings"

	"secure-scrub/internal/domain"
)

// ErrToolUnavailable is returned before any file is touched when a required
// external command is missing.
var ErrToolUnavailable = errors.New("required tool unavailable")

// ErrNoTargets is returned when Run receives nothing to process.
var ErrNoTargets = errors.New("no targets given")

// ErrNoOperations is returned when neither cleaning nor optimizing is enabled.
var ErrNoOperations = errors.New("no operations enabled")

// ToolUnavailableError lists the failed tool checks.
type ToolUnavailableError struct {
	Missing []domain.DiagnosticItem
}

// Error names every missing tool.
func (e *ToolUnavailableError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, item := range e.Missing {
		names = append(names, strings.TrimPrefix(item.ID, "tool_"))
	}
	return fmt.Sprintf("%s: %s", ErrToolUnavailable, strings.Join(names, ", "))
}

// Is matches ErrToolUnavailable.
func (e *ToolUnavailableError) Is(target error) bool {
	return target == ErrToolUnavailable
}
