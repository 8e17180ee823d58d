// Package locate decides which directory is backed up and where archives go.
package locate

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/tangthinker/dankutility/internal/backup"
)

// ErrResolutionAmbiguous indicates no usable source or destination was chosen.
var ErrResolutionAmbiguous = errors.New("backup locations could not be resolved")

// Picker prompt titles.
const (
	SourceTitle = "Select Sims 4 Mods Directory"
	DestTitle   = "Select Mods Backup Directory"
)

// DefaultPaths returns the standard Sims 4 mods folder below home and its
// parent, which is where archives are written.
func DefaultPaths(home string) (source, dest string) {
	dest = filepath.Join(home, "Documents", "Electronic Arts", "The Sims 4")
	return filepath.Join(dest, "Mods"), dest
}

// PathPicker asks the operator for a directory. A cancelled pick returns an
// empty path and no error.
type PathPicker interface {
	Pick(ctx context.Context, title string) (string, error)
}

// PickerFunc adapts a function to PathPicker.
type PickerFunc func(ctx context.Context, title string) (string, error)

// Pick calls f.
func (f PickerFunc) Pick(ctx context.Context, title string) (string, error) {
	return f(ctx, title)
}

// Resolution is the outcome of resolving backup locations.
type Resolution struct {
	Source string
	Dest   string
	// Defaulted is true when the standard layout was found.
	Defaulted bool
}

// Target converts the resolution to a backup target.
func (r Resolution) Target() backup.Target {
	return backup.Target{SourceDir: r.Source, DestDir: r.Dest}
}

// Validate checks that both paths are set, are directories on fs and that
// the destination is not inside the source.
func (r Resolution) Validate(fs afero.Fs) error {
	if r.Source == "" || r.Dest == "" {
		err := errors.Wrapf(ErrResolutionAmbiguous, "source %q, destination %q", r.Source, r.Dest)
		return errors.WithHint(err, "pick both folders, or set source_dir and dest_dir in the config file")
	}
	if ok, err := afero.DirExists(fs, r.Source); err != nil || !ok {
		return errors.Mark(errors.Newf("source %s is not a directory", r.Source), backup.ErrSourceUnavailable)
	}
	if ok, err := afero.DirExists(fs, r.Dest); err != nil || !ok {
		return errors.Mark(errors.Newf("destination %s is not a directory", r.Dest), backup.ErrDestinationUnwritable)
	}
	return r.Target().Validate()
}

// Resolver finds the backup locations once at startup.
type Resolver struct {
	fs     afero.Fs
	home   string
	picker PathPicker
	logger zerolog.Logger
}

// NewResolver creates a Resolver. picker may be nil when no interactive
// selection is possible.
func NewResolver(fs afero.Fs, home string, picker PathPicker, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fs:     fs,
		home:   home,
		picker: picker,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the default paths when both exist. Otherwise it asks the
// picker for the source and then the destination and returns the answers as
// given, empty answers included.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	source, dest := DefaultPaths(r.home)
	if r.exists(source) && r.exists(dest) {
		return Resolution{Source: source, Dest: dest, Defaulted: true}, nil
	}

	if r.picker == nil {
		err := errors.Wrapf(ErrResolutionAmbiguous, "default folder %s not found", source)
		return Resolution{}, errors.WithHint(err, "set source_dir and dest_dir in the config file")
	}

	source, err := r.picker.Pick(ctx, SourceTitle)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "pick source directory")
	}
	dest, err = r.picker.Pick(ctx, DestTitle)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "pick destination directory")
	}

	r.logger.Info().Str("source", source).Str("dest", dest).Msgf("mods folder selected: %s", source)
	return Resolution{Source: source, Dest: dest}, nil
}

func (r *Resolver) exists(path string) bool {
	ok, err := afero.Exists(r.fs, path)
	return err == nil && ok
}
