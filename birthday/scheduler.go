package birthday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"cakeday/logging"
)

const (
	// PollSchedule runs a pass every hour, on the hour (UTC).
	PollSchedule = "0 * * * *"

	// StartupGraceDelay is how long after Start the catch-up pass runs.
	StartupGraceDelay = 5 * time.Second
)

// PassReport summarises one pass.
type PassReport struct {
	ID         string         `json:"id"`
	Trigger    string         `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Records    int            `json:"records"`
	Groups     int            `json:"groups"`
	Announce   AnnounceReport `json:"announce"`
	Sweep      SweepReport    `json:"sweep"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running   bool       `json:"running"`
	LastPass  PassReport `json:"last_pass"`
	LastError string     `json:"last_error,omitempty"`
	Passes    int        `json:"passes"`
	Skipped   int        `json:"skipped"`
	NextRun   time.Time  `json:"next_run"`
}

type SchedulerConfig struct {
	Store     Store
	Gateway   Gateway
	ChannelID string
	RoleID    string
	Logger    *slog.Logger

	Messages   []string         // default: Messages
	Picker     Picker           // default: NewRandomPicker()
	Now        func() time.Time // default: time.Now
	Schedule   string           // default: PollSchedule
	GraceDelay time.Duration    // default: StartupGraceDelay
}

// Scheduler runs birthday passes hourly, once shortly after Start, and on
// demand. At most one pass runs at a time; a pass requested while another is
// running is dropped.
type Scheduler struct {
	store     Store
	gateway   Gateway
	announcer *Announcer
	sweeper   *Sweeper
	logger    *slog.Logger
	now       func() time.Time
	schedule  string
	grace     time.Duration

	cron  *cron.Cron
	entry cron.EntryID

	// held for the duration of a pass
	running sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	wg      sync.WaitGroup
	status  Status
}

// NewScheduler builds a scheduler. It doesn't start anything.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Gateway == nil {
		return nil, errors.New("scheduler needs a store and a gateway")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Picker == nil {
		cfg.Picker = NewRandomPicker()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Schedule == "" {
		cfg.Schedule = PollSchedule
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = StartupGraceDelay
	}

	resolver := NewResolver()
	logger := cfg.Logger.With("component", "birthday_scheduler")

	s := &Scheduler{
		store:   cfg.Store,
		gateway: cfg.Gateway,
		announcer: &Announcer{
			Store:     cfg.Store,
			Gateway:   cfg.Gateway,
			Resolver:  resolver,
			ChannelID: cfg.ChannelID,
			RoleID:    cfg.RoleID,
			Messages:  cfg.Messages,
			Picker:    cfg.Picker,
		},
		sweeper: &Sweeper{
			Gateway:  cfg.Gateway,
			Resolver: resolver,
			RoleID:   cfg.RoleID,
		},
		logger:   logger,
		now:      cfg.Now,
		schedule: cfg.Schedule,
		grace:    cfg.GraceDelay,
	}

	cronLogger := logging.CronLogger(logger)
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	entry, err := s.cron.AddFunc(cfg.Schedule, func() { s.run("schedule") })
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	s.entry = entry

	return s, nil
}

// Start arms the periodic schedule and the startup catch-up pass. Passes run
// with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron.Start()

	s.wg.Add(1)
	s.timer = time.AfterFunc(s.grace, func() {
		defer s.wg.Done()
		s.run("startup")
	})

	s.logger.Info("birthday scheduler started",
		"schedule", s.schedule,
		"startup_delay", s.grace,
	)
	return nil
}

// Stop disarms the schedule, cancels any in-flight pass and waits for it to
// return or for ctx to expire. No pass starts after Stop returns.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if s.timer.Stop() {
		s.wg.Done()
	}
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("birthday scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for birthday pass: %w", ctx.Err())
	}
}

// Trigger runs a pass in the background. It returns false if the scheduler
// isn't running. The pass is dropped if another is in progress.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run("trigger")
	}()
	return true
}

// Snapshot returns the scheduler's current status.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	status := s.status
	started := s.started && !s.stopped
	s.mu.Unlock()

	if started {
		status.NextRun = s.cron.Entry(s.entry).Next
	}
	return status
}

func (s *Scheduler) run(trigger string) {
	s.mu.Lock()
	ctx := s.ctx
	stopped := s.stopped
	s.mu.Unlock()

	if stopped || ctx == nil {
		return
	}

	_, err := s.runPass(ctx, trigger)
	if errors.Is(err, ErrPassInProgress) {
		s.logger.Warn("birthday pass still running, skipping", "trigger", trigger)
	}
}

// RunPass runs one pass synchronously: the announcement phase over every
// birthday, then the role sweep, both over the same snapshot of records and
// groups. It returns ErrPassInProgress without doing anything if a pass is
// already running.
func (s *Scheduler) RunPass(ctx context.Context) (PassReport, error) {
	return s.runPass(ctx, "manual")
}

func (s *Scheduler) runPass(ctx context.Context, trigger string) (report PassReport, err error) {
	if !s.running.TryLock() {
		s.mu.Lock()
		s.status.Skipped++
		s.mu.Unlock()
		return PassReport{}, ErrPassInProgress
	}
	defer s.running.Unlock()

	report = PassReport{
		ID:        ulid.Make().String(),
		Trigger:   trigger,
		StartedAt: s.now(),
	}
	logger := s.logger.With("pass_id", report.ID, "trigger", trigger)
	ctx = logging.WithContext(ctx, logger)

	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("birthday pass panicked: %v", r)
		}
		report.FinishedAt = s.now()
		s.finish(logger, report, err)
	}()

	logger.Info("checking birthdays")

	records, err := s.store.ListBirthdays(ctx)
	if err != nil {
		return report, fmt.Errorf("list birthdays: %w", err)
	}
	report.Records = len(records)

	groups, err := s.gateway.Groups(ctx)
	if err != nil {
		return report, fmt.Errorf("list guilds: %w", err)
	}
	report.Groups = len(groups)

	now := report.StartedAt

	report.Announce, err = s.announcer.Announce(ctx, records, groups, now)
	if err != nil {
		if ctx.Err() != nil {
			return report, err
		}
		logger.Error("announcement phase aborted", "error", err)
	}

	sweep, sweepErr := s.sweeper.Sweep(ctx, groups, records, now)
	report.Sweep = sweep
	if sweepErr != nil {
		return report, sweepErr
	}

	return report, err
}

func (s *Scheduler) finish(logger *slog.Logger, report PassReport, err error) {
	s.mu.Lock()
	s.status.Running = false
	s.status.Passes++
	s.status.LastPass = report
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	attrs := []any{
		"records", report.Records,
		"groups", report.Groups,
		"wished", report.Announce.Wished,
		"not_found", report.Announce.NotFound,
		"failed", report.Announce.Failed + report.Sweep.Failed,
		"revoked", report.Sweep.Revoked,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	}
	if err != nil {
		logger.Error("birthday pass finished with errors", append(attrs, "error", err)...)
		return
	}
	logger.Info("birthday pass finished", attrs...)
}
