// Package logging builds the zerolog logger used by the daemon: human-readable
// console output when attached to a terminal, JSON otherwise, plus a rotating
// compressed log file.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// MaxFileSizeMB is the size at which the log file is rotated.
const MaxFileSizeMB = 100

// Options configures New.
type Options struct {
	// Level is a zerolog level name. Empty means info.
	Level string
	// File is the log file path. Empty disables file output.
	File string
	// Console receives console output. Nil disables it.
	Console io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger from opts. The returned Closer releases the log file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "parse log level %q", opts.Level)
		}
		level = l
	}

	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, consoleWriter(opts.Console))
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  MaxFileSizeMB,
			Compress: true,
		}
		writers = append(writers, lj)
		closer = lj
	}

	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

func consoleWriter(w io.Writer) io.Writer {
	if isTerminal(w) {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return w
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
