package locate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const defaultPickDepth = 4

// NewPicker returns a FuzzyPicker rooted at home when in is a terminal and a
// PromptPicker reading from in otherwise.
func NewPicker(fs afero.Fs, home string, in io.Reader, out io.Writer) PathPicker {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return &FuzzyPicker{fs: fs, Root: home, MaxDepth: defaultPickDepth}
	}
	return NewPromptPicker(in, out)
}

// FuzzyPicker lets the operator choose a directory below Root with a
// terminal fuzzy finder.
type FuzzyPicker struct {
	fs       afero.Fs
	Root     string
	MaxDepth int
}

// Pick implements PathPicker. Aborting the finder is a cancelled pick.
func (p *FuzzyPicker) Pick(ctx context.Context, title string) (string, error) {
	dirs, err := p.candidates(ctx)
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", nil
	}

	idx, err := fuzzyfinder.Find(
		dirs,
		func(i int) string { return dirs[i] },
		fuzzyfinder.WithHeader(title),
	)
	if err != nil {
		if errors.Is(err, fuzzyfinder.ErrAbort) {
			return "", nil
		}
		return "", errors.Wrap(err, "directory picker failed")
	}
	return dirs[idx], nil
}

// candidates lists directories below Root, skipping hidden ones.
func (p *FuzzyPicker) candidates(ctx context.Context) ([]string, error) {
	var dirs []string
	err := afero.Walk(p.fs, p.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// unreadable subtrees are not offered
			return filepath.SkipDir
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !info.IsDir() {
			return nil
		}
		if path != p.Root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}

		dirs = append(dirs, path)

		rel, err := filepath.Rel(p.Root, path)
		if err != nil {
			return err
		}
		if rel != "." && strings.Count(rel, string(filepath.Separator))+1 >= p.MaxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, errors.Wrapf(err, "list directories below %s", p.Root)
	}
	return dirs, nil
}

// PromptPicker reads one path per pick from a line-oriented reader.
type PromptPicker struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptPicker creates a PromptPicker. Prompts are written to out.
func NewPromptPicker(in io.Reader, out io.Writer) *PromptPicker {
	return &PromptPicker{in: bufio.NewReader(in), out: out}
}

// Pick implements PathPicker. End of input is a cancelled pick.
func (p *PromptPicker) Pick(ctx context.Context, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "%s: ", title)

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "read directory")
	}
	return strings.TrimSpace(line), nil
}
