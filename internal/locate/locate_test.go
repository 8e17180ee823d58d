package locate

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangthinker/dankutility/internal/backup"
)

const home = "/home/simmer"

// scriptedPicker returns its answers in order and records the titles asked.
type scriptedPicker struct {
	answers []string
	titles  []string
}

func (p *scriptedPicker) Pick(_ context.Context, title string) (string, error) {
	p.titles = append(p.titles, title)
	if len(p.answers) == 0 {
		return "", nil
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func TestDefaultPaths(t *testing.T) {
	source, dest := DefaultPaths(home)
	assert.Equal(t, filepath.Join(home, "Documents", "Electronic Arts", "The Sims 4", "Mods"), source)
	assert.Equal(t, filepath.Dir(source), dest)
}

func TestResolveUsesDefaultsWhenPresent(t *testing.T) {
	fs := afero.NewMemMapFs()
	source, dest := DefaultPaths(home)
	require.NoError(t, fs.MkdirAll(source, 0o755))

	picker := &scriptedPicker{}
	res, err := NewResolver(fs, home, picker, zerolog.Nop()).Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Resolution{Source: source, Dest: dest, Defaulted: true}, res)
	assert.Empty(t, picker.titles)
}

func TestResolveFallsBackToPicker(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(fs afero.Fs)
		answers []string
		want    Resolution
	}{
		{
			name:    "nothing exists",
			setup:   func(afero.Fs) {},
			answers: []string{"/games/mods", "/backups"},
			want:    Resolution{Source: "/games/mods", Dest: "/backups"},
		},
		{
			name: "only parent exists",
			setup: func(fs afero.Fs) {
				_, dest := DefaultPaths(home)
				_ = fs.MkdirAll(dest, 0o755)
			},
			answers: []string{"/games/mods", "/backups"},
			want:    Resolution{Source: "/games/mods", Dest: "/backups"},
		},
		{
			name:    "cancelled picks are returned verbatim",
			setup:   func(afero.Fs) {},
			answers: []string{"", ""},
			want:    Resolution{},
		},
		{
			name:    "cancelled destination only",
			setup:   func(afero.Fs) {},
			answers: []string{"/games/mods", ""},
			want:    Resolution{Source: "/games/mods"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(fs)
			picker := &scriptedPicker{answers: tt.answers}

			res, err := NewResolver(fs, home, picker, zerolog.Nop()).Resolve(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.want, res)
			assert.Equal(t, []string{SourceTitle, DestTitle}, picker.titles)
		})
	}
}

func TestResolvePickerError(t *testing.T) {
	boom := errors.New("boom")
	picker := PickerFunc(func(context.Context, string) (string, error) { return "", boom })

	_, err := NewResolver(afero.NewMemMapFs(), home, picker, zerolog.Nop()).Resolve(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestResolveWithoutPicker(t *testing.T) {
	_, err := NewResolver(afero.NewMemMapFs(), home, nil, zerolog.Nop()).Resolve(context.Background())
	require.ErrorIs(t, err, ErrResolutionAmbiguous)
	assert.NotEmpty(t, errors.FlattenHints(err))
}

func TestResolutionValidate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/mods", 0o755))
	require.NoError(t, fs.MkdirAll("/backups", 0o755))
	require.NoError(t, fs.MkdirAll("/mods/zips", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0o644))

	tests := []struct {
		name string
		res  Resolution
		want error
	}{
		{"valid", Resolution{Source: "/mods", Dest: "/backups"}, nil},
		{"empty source", Resolution{Dest: "/backups"}, ErrResolutionAmbiguous},
		{"empty dest", Resolution{Source: "/mods"}, ErrResolutionAmbiguous},
		{"missing source", Resolution{Source: "/nope", Dest: "/backups"}, backup.ErrSourceUnavailable},
		{"source is file", Resolution{Source: "/file", Dest: "/backups"}, backup.ErrSourceUnavailable},
		{"missing dest", Resolution{Source: "/mods", Dest: "/nope"}, backup.ErrDestinationUnwritable},
		{"dest is source", Resolution{Source: "/mods", Dest: "/mods"}, backup.ErrInvalidTarget},
		{"dest inside source", Resolution{Source: "/mods", Dest: "/mods/zips"}, backup.ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.res.Validate(fs)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPromptPicker(t *testing.T) {
	var out bytes.Buffer
	p := NewPromptPicker(strings.NewReader("/games/mods\n  /backups  \n"), &out)

	first, err := p.Pick(context.Background(), SourceTitle)
	require.NoError(t, err)
	second, err := p.Pick(context.Background(), DestTitle)
	require.NoError(t, err)
	third, err := p.Pick(context.Background(), DestTitle)
	require.NoError(t, err)

	assert.Equal(t, "/games/mods", first)
	assert.Equal(t, "/backups", second)
	assert.Empty(t, third, "end of input is a cancelled pick")
	assert.Contains(t, out.String(), SourceTitle)
}

func TestNewPickerWithoutTerminal(t *testing.T) {
	p := NewPicker(afero.NewMemMapFs(), home, strings.NewReader(""), &bytes.Buffer{})
	assert.IsType(t, &PromptPicker{}, p)
}

func TestFuzzyPickerCandidates(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/root/Documents/Electronic Arts/The Sims 4/Mods", 0o755))
	require.NoError(t, fs.MkdirAll("/root/.cache/deep", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/root/notes.txt", []byte("x"), 0o644))

	p := &FuzzyPicker{fs: fs, Root: "/root", MaxDepth: 3}
	dirs, err := p.candidates(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/root",
		"/root/Documents",
		"/root/Documents/Electronic Arts",
		"/root/Documents/Electronic Arts/The Sims 4",
	}, dirs)
}

func TestFuzzyPickerMissingRoot(t *testing.T) {
	p := &FuzzyPicker{fs: afero.NewMemMapFs(), Root: "/missing", MaxDepth: 3}
	dirs, err := p.candidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dirs)
}
