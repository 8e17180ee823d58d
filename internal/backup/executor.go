package backup

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ArchivePrefix is the base name every archive starts with.
const ArchivePrefix = "Mods_"

// ArchiveName returns the archive file name for the calendar day of t.
func ArchiveName(t time.Time) string {
	return ArchivePrefix + t.Format("20060102") + ".zip"
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock replaces time.Now as the source of the run date.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// Executor performs single backup runs.
type Executor struct {
	fs       afero.Fs
	archiver *Archiver
	now      func() time.Time
	logger   zerolog.Logger
}

// NewExecutor creates an Executor writing through fs.
func NewExecutor(fs afero.Fs, logger zerolog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		fs:       fs,
		archiver: NewArchiver(fs),
		now:      time.Now,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run archives target.SourceDir into target.DestDir.
// The returned Run is always non-nil; its Err equals the returned error.
func (e *Executor) Run(ctx context.Context, target Target, trigger Trigger) (*Run, error) {
	startedAt := e.now()
	run := &Run{
		ID:          uuid.New(),
		Trigger:     trigger,
		Source:      target.SourceDir,
		TriggeredAt: startedAt,
		ArchivePath: filepath.Join(target.DestDir, ArchiveName(startedAt)),
	}

	stats, err := e.archive(ctx, target, run.ArchivePath)
	run.FinishedAt = e.now()
	run.Files = stats.Files
	run.Dirs = stats.Dirs
	run.Bytes = stats.Bytes

	if err != nil {
		run.Err = err
		run.Error = err.Error()
		e.logger.Error().
			Err(err).
			Str("run_id", run.ID.String()).
			Str("class", FailureClass(err)).
			Str("source", target.SourceDir).
			Str("archive", run.ArchivePath).
			Msg("mods backup failed")
		return run, err
	}

	e.logger.Info().
		Str("run_id", run.ID.String()).
		Str("archive", run.ArchivePath).
		Int("files", stats.Files).
		Int64("bytes", stats.Bytes).
		Dur("took", run.Duration()).
		Msgf("backed up mods as %s", filepath.Base(run.ArchivePath))
	return run, nil
}

func (e *Executor) archive(ctx context.Context, target Target, archivePath string) (Stats, error) {
	if target.SourceDir == "" {
		return Stats{}, errors.Mark(errors.New("source directory not set"), ErrSourceUnavailable)
	}
	info, err := e.fs.Stat(target.SourceDir)
	if err != nil {
		return Stats{}, errors.Mark(errors.Wrapf(err, "stat source %s", target.SourceDir), ErrSourceUnavailable)
	}
	if !info.IsDir() {
		return Stats{}, errors.Mark(errors.Newf("source %s is not a directory", target.SourceDir), ErrSourceUnavailable)
	}

	if target.DestDir == "" {
		return Stats{}, errors.Mark(errors.New("destination directory not set"), ErrDestinationUnwritable)
	}
	info, err = e.fs.Stat(target.DestDir)
	if err != nil {
		return Stats{}, errors.Mark(errors.Wrapf(err, "stat destination %s", target.DestDir), ErrDestinationUnwritable)
	}
	if !info.IsDir() {
		return Stats{}, errors.Mark(errors.Newf("destination %s is not a directory", target.DestDir), ErrDestinationUnwritable)
	}
	if err := target.Validate(); err != nil {
		return Stats{}, err
	}

	return e.archiver.Archive(ctx, target.SourceDir, archivePath)
}
