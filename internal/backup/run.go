package backup

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Sentinel errors for the failure classes of a backup run.
var (
	ErrSourceUnavailable     = errors.New("source directory unavailable")
	ErrDestinationUnwritable = errors.New("destination directory unwritable")
	ErrArchiveWrite          = errors.New("archive write failed")
	ErrInvalidTarget         = errors.New("invalid backup target")
)

// Target is the pair of directories a run reads from and writes into.
type Target struct {
	SourceDir string `json:"source_dir"`
	DestDir   string `json:"dest_dir"`
}

// Validate checks that both directories are set and that archives are not
// written inside the tree being archived.
func (t Target) Validate() error {
	if t.SourceDir == "" || t.DestDir == "" {
		return errors.Wrapf(ErrInvalidTarget, "source %q, destination %q", t.SourceDir, t.DestDir)
	}
	if Contains(t.SourceDir, t.DestDir) {
		err := errors.Wrapf(ErrInvalidTarget, "destination %s is inside source %s", t.DestDir, t.SourceDir)
		return errors.WithHint(err, "pick a backup folder outside the Mods folder, e.g. its parent")
	}
	return nil
}

// Contains reports whether path is dir or lies below it.
func Contains(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Outcome is the result class of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Run 表示一次备份执行
type Run struct {
	ID          uuid.UUID `json:"id"`
	Trigger     Trigger   `json:"trigger"`
	Source      string    `json:"source"`
	ArchivePath string    `json:"archive_path"`
	TriggeredAt time.Time `json:"triggered_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Files       int       `json:"files"`
	Dirs        int       `json:"dirs"`
	Bytes       int64     `json:"bytes"`
	Error       string    `json:"error,omitempty"`

	Err error `json:"-"`
}

// Outcome reports whether the run succeeded.
func (r *Run) Outcome() Outcome {
	if r.Err != nil || r.Error != "" {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Duration is the wall time the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.TriggeredAt)
}

// FailureClass names the sentinel a run error belongs to, for logging.
func FailureClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrDestinationUnwritable):
		return "destination_unwritable"
	case errors.Is(err, ErrArchiveWrite):
		return "archive_write"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	default:
		return "unknown"
	}
}
