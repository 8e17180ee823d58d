package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangthinker/dankutility/internal/backup"
	"github.com/tangthinker/dankutility/internal/client"
	"github.com/tangthinker/dankutility/internal/ipc"
)

type fixture struct {
	root    string
	socket  string
	manager *backup.Manager
	quit    chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "Mods")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.package"), []byte("a"), 0o644))

	fs := afero.NewOsFs()
	exec := backup.NewExecutor(fs, zerolog.Nop(), backup.WithClock(func() time.Time {
		return time.Date(2024, time.March, 7, 12, 0, 0, 0, time.Local)
	}))
	m, err := backup.NewManager(exec, backup.Target{SourceDir: src, DestDir: root}, time.Hour, zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{
		root:    root,
		socket:  filepath.Join(root, "d.sock"),
		manager: m,
		quit:    make(chan struct{}),
	}

	srv, err := NewServer(f.socket, m, fs, zerolog.Nop(), func() { close(f.quit) })
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		require.NoError(t, <-served)
	})
	return f
}

func (f *fixture) client(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.NewClient(f.socket)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestServerStatus(t *testing.T) {
	f := newFixture(t)

	st, err := f.client(t).Status()
	require.NoError(t, err)
	assert.Equal(t, backup.StateIdle, st.State)
	assert.Equal(t, time.Hour, st.Period)
	assert.Equal(t, filepath.Join(f.root, "Mods"), st.Target.SourceDir)
	assert.Nil(t, st.LastRun)
}

func TestServerRun(t *testing.T) {
	f := newFixture(t)

	run, err := f.client(t).RunNow()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, filepath.Join(f.root, "Mods_20240307.zip"), run.ArchivePath)
	assert.Equal(t, backup.OutcomeSuccess, run.Outcome())
	assert.FileExists(t, run.ArchivePath)

	st, err := f.client(t).Status()
	require.NoError(t, err)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, run.ID, st.LastRun.ID)
}

func TestServerRunFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "Mods")))

	run, err := f.client(t).RunNow()
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, backup.OutcomeFailure, run.Outcome())
}

func TestServerSetPaths(t *testing.T) {
	f := newFixture(t)
	other := filepath.Join(f.root, "Other")
	require.NoError(t, os.MkdirAll(other, 0o755))

	st, err := f.client(t).SetPaths(other, f.root)
	require.NoError(t, err)
	assert.Equal(t, other, st.Target.SourceDir)
	assert.Equal(t, other, f.manager.Target().SourceDir)

	_, err = f.client(t).SetPaths(filepath.Join(f.root, "missing"), f.root)
	assert.Error(t, err)
	assert.Equal(t, other, f.manager.Target().SourceDir)

	_, err = f.client(t).SetPaths("", f.root)
	assert.Error(t, err)
}

func TestServerSetPathsRejectsNestedDestination(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.root, "Mods")
	nested := filepath.Join(src, "backups")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, err := f.client(t).SetPaths(src, nested)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inside source")
	assert.Contains(t, errors.FlattenHints(err), "outside the Mods folder")
	assert.Equal(t, f.root, f.manager.Target().DestDir)
}

func TestServerSetPathsEmptyCarriesHint(t *testing.T) {
	f := newFixture(t)

	_, err := f.client(t).SetPaths("", f.root)
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "pick both folders")
}

func TestServerQuit(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.client(t).Quit())
	select {
	case <-f.quit:
	case <-time.After(5 * time.Second):
		t.Fatal("quit callback not called")
	}
}

func TestServerUnknownCommand(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client(t).SendCommand(ipc.NewCommand("REWIND", nil))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown command type")
}
