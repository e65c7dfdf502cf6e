package domain

// FileStage represents a per-file pipeline state.
type FileStage string

const (
	FileStageQueued     FileStage = "queued"
	FileStageCleaning   FileStage = "cleaning"
	FileStageOptimizing FileStage = "optimizing"
	FileStageFinalizing FileStage = "finalizing"
	FileStageDone       FileStage = "done"
	FileStageSkipped    FileStage = "skipped"
	FileStageFailed     FileStage = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s FileStage) Terminal() bool {
	switch s {
	case FileStageDone, FileStageSkipped, FileStageFailed:
		return true
	default:
		return false
	}
}
