package backup

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// MinPeriod is the shortest period the cron constant-delay schedule supports.
const MinPeriod = time.Second

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateArmed   State = "armed"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

var errStopped = errors.New("backup scheduler stopped")

// Status is a point-in-time view of the Manager.
type Status struct {
	State   State         `json:"state"`
	Target  Target        `json:"target"`
	Period  time.Duration `json:"period"`
	NextRun time.Time     `json:"next_run"`
	LastRun *Run          `json:"last_run,omitempty"`
}

// Manager 管理定时备份
type Manager struct {
	exec   *Executor
	cron   *cron.Cron
	period time.Duration
	logger zerolog.Logger

	// ctx is the context handed to scheduled runs, set by Start.
	ctx context.Context

	mu      sync.RWMutex
	target  Target
	state   State
	entryID cron.EntryID
	started bool
	lastRun *Run
	// active is closed when the in-flight run finishes; nil when idle.
	active chan struct{}

	// runMu serializes scheduled and on-demand runs.
	runMu sync.Mutex
}

// NewManager 创建一个新的备份管理器
func NewManager(exec *Executor, target Target, period time.Duration, logger zerolog.Logger) (*Manager, error) {
	if period < MinPeriod {
		return nil, errors.Newf("backup period %s is shorter than %s", period, MinPeriod)
	}
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	l := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: l}
	return &Manager{
		exec:   exec,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		period: period,
		logger: l,
		target: target,
		state:  StateIdle,
	}, nil
}

// Start arms the recurring timer. Scheduled runs use ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateStopped:
		return errStopped
	case StateIdle:
	default:
		return errors.New("backup scheduler already running")
	}

	m.ctx = ctx
	m.entryID = m.cron.Schedule(cron.Every(m.period), cron.FuncJob(m.tick))
	m.cron.Start()
	m.started = true
	m.state = StateArmed

	m.logger.Info().
		Dur("period", m.period).
		Str("source", m.target.SourceDir).
		Str("dest", m.target.DestDir).
		Msg("backup scheduler started")
	return nil
}

// Stop disarms the timer. The returned context is done once an in-flight
// run has finished, whether it was scheduled or started by RunNow.
func (m *Manager) Stop() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if m.state == StateStopped {
		cancel()
		return ctx
	}
	m.state = StateStopped

	active, started := m.active, m.started
	if !started && active == nil {
		cancel()
		return ctx
	}

	m.logger.Info().Msg("stopping backup scheduler")
	cronDone := context.Background()
	if started {
		cronDone = m.cron.Stop()
	}
	go func() {
		defer cancel()
		if started {
			<-cronDone.Done()
		}
		if active != nil {
			<-active
		}
	}()
	return ctx
}

// RunNow runs a backup immediately, waiting for any scheduled run to finish first.
func (m *Manager) RunNow(ctx context.Context) (*Run, error) {
	return m.run(ctx, TriggerManual)
}

// SetTarget replaces the directories used by subsequent runs.
// A run already in progress keeps the target it started with.
func (m *Manager) SetTarget(target Target) error {
	if err := validateTarget(target); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.target = target
	m.logger.Info().
		Str("source", target.SourceDir).
		Str("dest", target.DestDir).
		Msg("backup target updated")
	return nil
}

// Target returns the directories the next run will use.
func (m *Manager) Target() Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.target
}

// Status reports the current state, target and most recent run.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{
		State:   m.state,
		Target:  m.target,
		Period:  m.period,
		LastRun: m.lastRun,
	}
	if m.state == StateArmed || m.state == StateRunning {
		s.NextRun = m.cron.Entry(m.entryID).Next
	}
	return s
}

// tick is the cron job. Failures are logged by the executor and the
// schedule keeps going.
func (m *Manager) tick() {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()

	if _, err := m.run(ctx, TriggerSchedule); err != nil && errors.Is(err, errStopped) {
		m.logger.Debug().Msg("tick after stop ignored")
	}
}

func (m *Manager) run(ctx context.Context, trigger Trigger) (*Run, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return nil, errStopped
	}
	prev := m.state
	target := m.target
	m.state = StateRunning
	done := make(chan struct{})
	m.active = done
	m.mu.Unlock()

	run, err := m.exec.Run(ctx, target, trigger)

	m.mu.Lock()
	m.active = nil
	m.lastRun = run
	if m.state == StateRunning {
		m.state = prev
	}
	m.mu.Unlock()
	close(done)

	return run, err
}

func validateTarget(t Target) error {
	return t.Validate()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
