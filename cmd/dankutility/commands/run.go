package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tangthinker/dankutility/internal/backup"
	"github.com/tangthinker/dankutility/internal/daemon"
	"github.com/tangthinker/dankutility/internal/locate"
	"github.com/tangthinker/dankutility/internal/logging"
)

// backupOnStart holds the value of the --backup-now flag.
var backupOnStart bool

func init() {
	runCmd.Flags().Duration("period", 0, "interval between backups (default 6h)")
	runCmd.Flags().BoolVar(&backupOnStart, "backup-now", false, "run one backup right after startup")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the background backup process",
	Long: `Start the background backup process.

The Mods folder is taken from source_dir/dest_dir in the config file when both
are set. Otherwise the standard Documents/Electronic Arts/The Sims 4/Mods folder
is used, and if it is missing you are asked to pick both folders.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	logger, closer, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: os.Stderr,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	// 检查是否已有守护进程在运行
	if err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o700); err != nil {
		return errors.Wrap(err, "create runtime directory")
	}
	lock := flock.New(cfg.LockFile())
	locked, err := lock.TryLock()
	if err != nil {
		return errors.Wrap(err, "acquire instance lock")
	}
	if !locked {
		return errors.WithHint(errors.New("dankutility is already running"), "stop it with: dankutility quit")
	}
	defer lock.Unlock()

	fs := afero.NewOsFs()
	res, err := resolveLocations(cmd.Context(), fs, logger)
	if err != nil {
		return err
	}
	if err := res.Validate(fs); err != nil {
		return err
	}

	exec := backup.NewExecutor(fs, logger)
	manager, err := backup.NewManager(exec, res.Target(), cfg.Period, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quit := make(chan struct{})
	var quitOnce sync.Once
	server, err := daemon.NewServer(cfg.Socket, manager, fs, logger, func() {
		quitOnce.Do(func() { close(quit) })
	})
	if err != nil {
		return err
	}

	// Runs are never cut short by a signal; shutdown waits for them.
	runCtx := context.WithoutCancel(ctx)
	if err := manager.Start(runCtx); err != nil {
		server.Close()
		return err
	}
	if backupOnStart {
		go manager.RunNow(runCtx)
	}

	logger.Info().Str("socket", cfg.Socket).Msg("dankutility started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(runCtx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-quit:
		}
		logger.Info().Msg("shutting down dankutility")
		<-manager.Stop().Done()
		return server.Close()
	})
	return g.Wait()
}

// resolveLocations uses configured paths when both are set and falls back to
// the resolver otherwise.
func resolveLocations(ctx context.Context, fs afero.Fs, logger zerolog.Logger) (locate.Resolution, error) {
	if cfg.HasManualPaths() {
		return locate.Resolution{Source: cfg.SourceDir, Dest: cfg.DestDir}, nil
	}

	picker := locate.NewPicker(fs, xdg.Home, os.Stdin, os.Stderr)
	res, err := locate.NewResolver(fs, xdg.Home, picker, logger).Resolve(ctx)
	if err != nil {
		return locate.Resolution{}, err
	}
	if res.Defaulted {
		logger.Info().Str("source", res.Source).Msg("using default mods folder")
	}
	return res, nil
}
