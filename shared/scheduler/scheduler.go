package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"trend-stack/internal/models"
	"trend-stack/shared/config"
	"trend-stack/shared/events"
	"trend-stack/shared/lock"
	"trend-stack/shared/logging"
	"trend-stack/shared/metrics"
	"trend-stack/shared/monitoring"
)

// Metrics defines the common interface for stage metrics
type Metrics interface {
	// GetSummary returns a human-readable summary of the run
	GetSummary() string
}

// AgentEvents provides callbacks for monitoring stage execution
type AgentEvents struct {
	RunID             string
	OnSuccess         func(metrics Metrics, duration time.Duration)
	OnPartialFailure  func(err error, duration time.Duration)
	OnCriticalFailure func(err error, duration time.Duration)
}

// Agent defines the interface that all agents must implement
type Agent interface {
	Name() string
	Initialize() error
	RunStage(ctx context.Context, stage models.Stage, events *AgentEvents) error
}

// RouteProvider is implemented by agents that expose HTTP routes next to the
// health endpoints.
type RouteProvider interface {
	Routes(r chi.Router)
}

// Scheduler manages the execution of agent stages on a schedule
type Scheduler struct {
	config    *config.Config
	monitor   *monitoring.Monitor
	agent     Agent
	locker    lock.Locker
	publisher events.Publisher
	cron      *cron.Cron
}

type Option func(*Scheduler)

func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

func WithMonitor(m *monitoring.Monitor) Option {
	return func(s *Scheduler) { s.monitor = m }
}

func New(cfg *config.Config, agent Agent, opts ...Option) *Scheduler {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	s := &Scheduler{
		config: cfg,
		agent:  agent,
		// Prevent overlapping runs of the same entry
		cron: cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cronLogger{}))),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.monitor == nil {
		s.monitor = monitoring.NewMonitor()
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	return s
}

func (s *Scheduler) Monitor() *monitoring.Monitor {
	return s.monitor
}

func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.agent.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}

	// Health, metrics and the agent's read API share one server
	healthServer := monitoring.NewHealthServer(s.monitor, strconv.Itoa(s.config.Monitoring.HealthPort))
	if rp, ok := s.agent.(RouteProvider); ok {
		healthServer.Route("/api/v1", rp.Routes)
	}
	healthServer.Start()

	scheduled := 0
	for stage, spec := range s.stageSchedules() {
		if spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(spec, func() {
			if err := s.RunOnce(ctx, stage); err != nil {
				logging.Error().Err(err).Str("stage", string(stage)).Msg("Scheduled run failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to add cron job for %s: %w", stage, err)
		}
		logging.Info().Str("stage", string(stage)).Str("schedule", spec).Msg("Stage scheduled")
		scheduled++
	}
	if scheduled == 0 {
		logging.Warn().Msg("No stage schedules configured, serving API only")
	}

	logging.Info().Str("agent", s.agent.Name()).Msg("Scheduler started")
	s.cron.Start()

	// Keep the scheduler running indefinitely until context is cancelled
	<-ctx.Done()
	logging.Info().Str("agent", s.agent.Name()).Msg("Scheduler stopped")
	<-s.cron.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Health server shutdown failed")
	}
	return ctx.Err()
}

func (s *Scheduler) stageSchedules() map[models.Stage]string {
	return map[models.Stage]string{
		models.StageCollect:   s.config.Schedule.Collect,
		models.StageAggregate: s.config.Schedule.Aggregate,
		models.StageScore:     s.config.Schedule.Score,
	}
}

// RunAll runs every stage in order and stops at the first failure.
func (s *Scheduler) RunAll(ctx context.Context) error {
	for _, stage := range models.Stages {
		if err := s.RunOnce(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce runs one stage under its run lock.
func (s *Scheduler) RunOnce(ctx context.Context, stage models.Stage) error {
	release, err := s.locker.Acquire(ctx, string(stage))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			logging.Warn().Str("stage", string(stage)).Msg("Stage already running elsewhere, skipping")
		}
		return fmt.Errorf("%s run skipped: %w", stage, err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			logging.Warn().Err(err).Str("stage", string(stage)).Msg("Failed to release stage lock")
		}
	}()

	startTime := time.Now()
	runID := uuid.NewString()
	agentName := s.agent.Name()
	log := logging.With().Str("stage", string(stage)).Str("run_id", runID).Logger()

	log.Info().Msgf("Starting %s %s run...", agentName, stage)

	// Create event handlers for monitoring
	ev := &AgentEvents{
		RunID: runID,
		OnSuccess: func(m Metrics, duration time.Duration) {
			s.monitor.RecordSuccess(stage, m.GetSummary(), duration)
			s.recordSuccess(ctx, stage, m, duration)
		},
		OnPartialFailure: func(err error, duration time.Duration) {
			s.monitor.RecordPartialFailure(stage, fmt.Errorf("%s partial failure: %w", agentName, err), duration)
		},
		OnCriticalFailure: func(err error, duration time.Duration) {
			s.monitor.RecordCriticalFailure(stage, fmt.Errorf("%s critical failure: %w", agentName, err), duration)
		},
	}

	if err := s.agent.RunStage(ctx, stage, ev); err != nil {
		duration := time.Since(startTime)
		metrics.StageRuns.WithLabelValues(string(stage), metrics.OutcomeFailed).Inc()
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
		return fmt.Errorf("%s %s run failed: %w", agentName, stage, err)
	}
	return nil
}

func (s *Scheduler) recordSuccess(ctx context.Context, stage models.Stage, m Metrics, duration time.Duration) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())

	summary, ok := m.(models.StageSummary)
	if !ok {
		metrics.StageRuns.WithLabelValues(string(stage), metrics.OutcomeSuccess).Inc()
		return
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case summary.NoData:
		outcome = metrics.OutcomeNoData
	case summary.Errors > 0:
		outcome = metrics.OutcomePartial
	}
	metrics.StageRuns.WithLabelValues(string(stage), outcome).Inc()
	metrics.StageItems.WithLabelValues(string(stage), "created").Add(float64(summary.Created))
	metrics.StageItems.WithLabelValues(string(stage), "updated").Add(float64(summary.Updated))
	metrics.StageItems.WithLabelValues(string(stage), "error").Add(float64(summary.Errors))

	if err := s.publisher.StageCompleted(ctx, summary); err != nil {
		logging.Warn().Err(err).Str("stage", string(stage)).Msg("Failed to publish stage event")
	}
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
