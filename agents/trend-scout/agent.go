package trendscout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trend-stack/agents/trend-scout/youtube"
	"trend-stack/internal/models"
	"trend-stack/shared/config"
	"trend-stack/shared/email"
	"trend-stack/shared/logging"
	"trend-stack/shared/scheduler"
	"trend-stack/shared/storage"
)

// TrendAgent implements the scheduler.Agent interface for the collect,
// aggregate and score stages.
type TrendAgent struct {
	config   *config.Config
	db       *storage.DB
	ownsDB   bool
	notifier GapNotifier
	now      func() time.Time

	snapshots *storage.SnapshotRepository
	trends    *storage.TrendRepository
	gaps      *storage.GapRepository
	channels  *storage.ChannelRepository

	mu       sync.Mutex
	provider MetadataProvider
}

type Option func(*TrendAgent)

// WithStore uses an already opened database instead of database.path.
func WithStore(db *storage.DB) Option {
	return func(a *TrendAgent) { a.db = db }
}

// WithProvider replaces the YouTube client.
func WithProvider(p MetadataProvider) Option {
	return func(a *TrendAgent) { a.provider = p }
}

func WithClock(now func() time.Time) Option {
	return func(a *TrendAgent) { a.now = now }
}

func WithNotifier(n GapNotifier) Option {
	return func(a *TrendAgent) { a.notifier = n }
}

func NewTrendAgent(cfg *config.Config, opts ...Option) *TrendAgent {
	a := &TrendAgent{
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil && cfg.Email.Enabled() {
		a.notifier = email.NewSender(&cfg.Email)
	}
	return a
}

func (a *TrendAgent) Name() string {
	return "Trend Scout Agent"
}

func (a *TrendAgent) Initialize() error {
	logging.Info().Msgf("Initializing %s...", a.Name())

	if a.db == nil {
		db, err := storage.Open(a.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		a.ownsDB = true
		logging.Info().Str("path", a.config.Database.Path).Msg("Database ready")
	}

	a.snapshots = storage.NewSnapshotRepository(a.db)
	a.trends = storage.NewTrendRepository(a.db)
	a.gaps = storage.NewGapRepository(a.db)
	a.channels = storage.NewChannelRepository(a.db)

	added, err := a.channels.TrackChannels(context.Background(), a.config.Pipeline.TrackedChannels)
	if err != nil {
		return fmt.Errorf("failed to register tracked channels: %w", err)
	}
	total, err := a.channels.Count(context.Background())
	if err != nil {
		return fmt.Errorf("failed to count tracked channels: %w", err)
	}
	logging.Info().Int("added", added).Int("tracked", total).Msg("Tracked channels registered")

	if a.notifier != nil {
		logging.Info().Str("to", a.config.Email.ToEmail).Msg("Gap digest enabled")
	}
	return nil
}

// Close releases the database when the agent opened it.
func (a *TrendAgent) Close() error {
	if a.ownsDB && a.db != nil {
		return a.db.Close()
	}
	return nil
}

// RunStage runs one pipeline stage and reports it through events.
func (a *TrendAgent) RunStage(ctx context.Context, stage models.Stage, events *scheduler.AgentEvents) error {
	startTime := time.Now()
	if a.db == nil {
		err := fmt.Errorf("agent not initialized")
		criticalFailure(events, err, time.Since(startTime))
		return err
	}

	var (
		res stageResult
		err error
	)
	switch stage {
	case models.StageCollect:
		res, err = a.runCollect(ctx)
	case models.StageAggregate:
		res, err = a.runAggregate(ctx)
	case models.StageScore:
		res, err = a.runScore(ctx)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}

	duration := time.Since(startTime)
	if err != nil {
		criticalFailure(events, err, duration)
		return err
	}

	summary := res.summary
	summary.Stage = stage
	summary.StartedAt = startTime
	summary.Duration = duration
	if events != nil {
		summary.RunID = events.RunID
	}

	if summary.Errors > 0 && res.lastErr != nil && events != nil && events.OnPartialFailure != nil {
		events.OnPartialFailure(fmt.Errorf("%d item(s) failed, last: %w", summary.Errors, res.lastErr), duration)
	}

	logging.Info().Str("stage", string(stage)).Msg(summary.GetSummary())
	if events != nil && events.OnSuccess != nil {
		events.OnSuccess(summary, duration)
	}
	return nil
}

// stageResult is a stage summary plus the last per-item failure, if any.
type stageResult struct {
	summary models.StageSummary
	lastErr error
}

func criticalFailure(events *scheduler.AgentEvents, err error, duration time.Duration) {
	if events != nil && events.OnCriticalFailure != nil {
		events.OnCriticalFailure(err, duration)
	}
}

// metadataProvider returns the configured provider, creating the YouTube
// client on first use.
func (a *TrendAgent) metadataProvider(ctx context.Context) (MetadataProvider, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.provider != nil {
		return a.provider, nil
	}
	client, err := youtube.NewClient(ctx, &a.config.YouTube)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube client: %w", err)
	}
	a.provider = client
	logging.Info().Msg("YouTube client initialized")
	return a.provider, nil
}

func (a *TrendAgent) runCollect(ctx context.Context) (stageResult, error) {
	var res stageResult

	// Credentials are checked before anything is written.
	if a.provider == nil {
		if err := a.config.ValidateCollector(); err != nil {
			return res, err
		}
	}
	provider, err := a.metadataProvider(ctx)
	if err != nil {
		return res, err
	}

	sel, err := NewSelector(provider, a.snapshots, a.channels, a.config.Pipeline, a.now).Select(ctx)
	if err != nil {
		return res, err
	}

	collected := NewCollector(provider, a.snapshots, a.config.Pipeline.BatchSize, a.config.Pipeline.Concurrency, a.now).
		Collect(ctx, sel.IDs)

	res.summary = models.StageSummary{
		Processed: len(sel.IDs),
		Created:   collected.Created,
		Errors:    collected.Errors + sel.ChannelErrors,
	}
	res.summary.NoData = collected.Created == 0 && res.summary.Errors == 0

	res.lastErr = collected.LastErr
	if res.lastErr == nil {
		res.lastErr = sel.LastErr
	}
	return res, nil
}

func (a *TrendAgent) runAggregate(ctx context.Context) (stageResult, error) {
	var res stageResult
	summary := &res.summary

	aggregator := NewAggregator(a.snapshots, a.trends, a.config.Pipeline.MinVideos, a.now)
	for _, p := range a.config.Pipeline.Periods {
		agg, err := aggregator.Aggregate(ctx, models.Period(p))
		if err != nil {
			return res, fmt.Errorf("%s aggregation: %w", p, err)
		}
		summary.Processed += agg.Candidates
		summary.Created += agg.Created
		summary.Updated += agg.Updated
		summary.Errors += agg.Errors
		if agg.LastErr != nil {
			res.lastErr = agg.LastErr
		}
	}
	summary.NoData = summary.Created+summary.Updated+summary.Errors == 0
	return res, nil
}

func (a *TrendAgent) runScore(ctx context.Context) (stageResult, error) {
	scorer := NewScorer(a.trends, a.snapshots, a.gaps, ScorerConfig{
		Period:       models.Period(a.config.Pipeline.ScorePeriod),
		SupplyWindow: a.config.Pipeline.SupplyWindow,
		Notifier:     a.notifier,
		DigestSize:   a.config.Email.TopGaps,
		DigestMin:    a.config.Email.MinScore,
	}, a.now)

	scored, err := scorer.Score(ctx)
	if err != nil {
		return stageResult{}, err
	}
	return stageResult{
		summary: models.StageSummary{
			Processed: scored.Trends,
			Created:   scored.Gaps,
			Errors:    scored.Errors,
			NoData:    scored.Gaps == 0,
		},
		lastErr: scored.LastErr,
	}, nil
}
