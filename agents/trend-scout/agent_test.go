package trendscout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trend-stack/internal/models"
	"trend-stack/shared/config"
	"trend-stack/shared/scheduler"
	"trend-stack/shared/storage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fakeProvider struct {
	mu         sync.Mutex
	videos     map[string]*models.VideoStats
	uploads    map[string][]string
	failFetch  map[string]bool // any batch containing one of these ids fails
	failUpload map[string]bool
	fetchCalls [][]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		videos:     make(map[string]*models.VideoStats),
		uploads:    make(map[string][]string),
		failFetch:  make(map[string]bool),
		failUpload: make(map[string]bool),
	}
}

func (f *fakeProvider) addVideo(id, channelID string, views int64, publishedAgo time.Duration, tags ...string) {
	f.videos[id] = &models.VideoStats{
		VideoID:      id,
		ChannelID:    channelID,
		Tags:         tags,
		PublishedAt:  testNow.Add(-publishedAgo),
		ViewCount:    views,
		LikeCount:    views / 20,
		CommentCount: views / 100,
	}
}

func (f *fakeProvider) FetchVideos(_ context.Context, ids []string) (map[string]*models.VideoStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, append([]string(nil), ids...))

	out := make(map[string]*models.VideoStats)
	for _, id := range ids {
		if f.failFetch[id] {
			return nil, errors.New("quota exceeded")
		}
		if v, ok := f.videos[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeProvider) RecentUploads(_ context.Context, channelID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload[channelID] {
		return nil, errors.New("channel not found")
	}
	ids := f.uploads[channelID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type recordingNotifier struct {
	reports []*models.GapReport
	err     error
}

func (n *recordingNotifier) SendGapReport(r *models.GapReport) error {
	n.reports = append(n.reports, r)
	return n.err
}

type eventLog struct {
	successes []models.StageSummary
	partials  []error
	criticals []error
}

func (l *eventLog) events() *scheduler.AgentEvents {
	return &scheduler.AgentEvents{
		RunID: "run-1",
		OnSuccess: func(m scheduler.Metrics, _ time.Duration) {
			l.successes = append(l.successes, m.(models.StageSummary))
		},
		OnPartialFailure: func(err error, _ time.Duration) {
			l.partials = append(l.partials, err)
		},
		OnCriticalFailure: func(err error, _ time.Duration) {
			l.criticals = append(l.criticals, err)
		},
	}
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		YouTube: config.YouTubeConfig{APIKey: "test-key"},
		Pipeline: config.PipelineConfig{
			TrendingLimit:     100,
			TrendingLookback:  24 * time.Hour,
			MaxChannels:       10,
			UploadsPerChannel: 4,
			MaxCandidates:     50,
			Concurrency:       2,
			BatchSize:         50,
			Periods:           []string{"daily"},
			MinVideos:         3,
			SupplyWindow:      30 * 24 * time.Hour,
			ScorePeriod:       "daily",
		},
		Email: config.EmailConfig{TopGaps: 10},
	}
}

func newTestAgent(t *testing.T, cfg *config.Config, opts ...Option) *TrendAgent {
	t.Helper()
	opts = append([]Option{WithStore(openTestDB(t)), WithClock(fixedClock)}, opts...)
	agent := NewTrendAgent(cfg, opts...)
	if err := agent.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return agent
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.TrackedChannels = []string{"UC-drones"}

	provider := newFakeProvider()
	provider.uploads["UC-drones"] = []string{"v1", "v2", "v3", "v4"}
	for i, views := range []int64{10000, 12000, 9000, 15000} {
		provider.addVideo([]string{"v1", "v2", "v3", "v4"}[i], "UC-drones", views, 48*time.Hour, "drone")
	}
	notifier := &recordingNotifier{}

	agent := newTestAgent(t, cfg, WithProvider(provider), WithNotifier(notifier))
	ctx := context.Background()

	var log eventLog
	for _, stage := range models.Stages {
		if err := agent.RunStage(ctx, stage, log.events()); err != nil {
			t.Fatalf("RunStage(%s) error = %v", stage, err)
		}
	}

	if len(log.criticals) != 0 || len(log.partials) != 0 {
		t.Fatalf("unexpected failures: critical=%v partial=%v", log.criticals, log.partials)
	}
	if len(log.successes) != 3 {
		t.Fatalf("got %d successes, want 3", len(log.successes))
	}

	collect, aggregate, score := log.successes[0], log.successes[1], log.successes[2]
	if collect.Stage != models.StageCollect || collect.Created != 4 || collect.RunID != "run-1" {
		t.Errorf("collect summary = %+v", collect)
	}
	if aggregate.Created != 1 || aggregate.NoData {
		t.Errorf("aggregate summary = %+v", aggregate)
	}
	if score.Created != 1 || score.NoData {
		t.Errorf("score summary = %+v", score)
	}

	trends, err := agent.trends.LatestTrends(ctx, models.PeriodDaily)
	if err != nil {
		t.Fatalf("LatestTrends() error = %v", err)
	}
	if len(trends) != 1 || trends[0].Keyword != "drone" || trends[0].AvgViews != 11500 {
		t.Errorf("trends = %+v", trends)
	}
	if trends[0].Category != models.CategoryTechnology || trends[0].SearchVolume != 400 {
		t.Errorf("trend category/search volume = %q/%d", trends[0].Category, trends[0].SearchVolume)
	}

	gaps, err := agent.gaps.ListGaps(ctx, storage.GapFilter{})
	if err != nil {
		t.Fatalf("ListGaps() error = %v", err)
	}
	if len(gaps) != 1 || gaps[0].VideoCount != 4 || gaps[0].TopVideoViews != 15000 {
		t.Errorf("gaps = %+v", gaps)
	}

	if len(notifier.reports) != 1 || len(notifier.reports[0].Gaps) != 1 {
		t.Errorf("digest reports = %+v", notifier.reports)
	}
}

func TestCollectWithoutCredentialsFailsBeforeWrites(t *testing.T) {
	cfg := testConfig()
	cfg.YouTube = config.YouTubeConfig{}
	cfg.Pipeline.TrackedChannels = []string{"UC1"}

	agent := newTestAgent(t, cfg)
	ctx := context.Background()

	var log eventLog
	err := agent.RunStage(ctx, models.StageCollect, log.events())
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("RunStage() error = %v, want ErrConfiguration", err)
	}
	if len(log.criticals) != 1 || len(log.successes) != 0 {
		t.Errorf("events: critical=%d success=%d, want 1/0", len(log.criticals), len(log.successes))
	}

	channels, err := agent.channels.NextChannels(ctx, 10)
	if err != nil {
		t.Fatalf("NextChannels() error = %v", err)
	}
	if len(channels) != 1 || channels[0].LastSampledAt != nil {
		t.Errorf("channel was touched: %+v", channels)
	}
}

func TestCollectCountsPartialFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.TrackedChannels = []string{"UC-ok", "UC-broken"}

	provider := newFakeProvider()
	provider.uploads["UC-ok"] = []string{"v1", "gone"}
	provider.failUpload["UC-broken"] = true
	provider.addVideo("v1", "UC-ok", 100, time.Hour)

	agent := newTestAgent(t, cfg, WithProvider(provider))

	var log eventLog
	if err := agent.RunStage(context.Background(), models.StageCollect, log.events()); err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}

	if len(log.successes) != 1 {
		t.Fatalf("got %d successes, want 1", len(log.successes))
	}
	s := log.successes[0]
	// One channel failed and one candidate was not returned.
	if s.Processed != 2 || s.Created != 1 || s.Errors != 2 || s.NoData {
		t.Errorf("summary = %+v", s)
	}
	if len(log.partials) != 1 || !errors.Is(log.partials[0], ErrExternalFetch) {
		t.Errorf("partials = %v, want one ErrExternalFetch", log.partials)
	}
}

func TestRunStageNoData(t *testing.T) {
	agent := newTestAgent(t, testConfig(), WithProvider(newFakeProvider()))

	for _, stage := range models.Stages {
		var log eventLog
		if err := agent.RunStage(context.Background(), stage, log.events()); err != nil {
			t.Fatalf("RunStage(%s) error = %v", stage, err)
		}
		if len(log.successes) != 1 || !log.successes[0].NoData {
			t.Errorf("%s: successes = %+v, want one no-data summary", stage, log.successes)
		}
	}
}

func TestRunStageUnknown(t *testing.T) {
	agent := newTestAgent(t, testConfig())

	var log eventLog
	if err := agent.RunStage(context.Background(), models.Stage("publish"), log.events()); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if len(log.criticals) != 1 {
		t.Errorf("criticals = %d, want 1", len(log.criticals))
	}
}

func TestRunStageBeforeInitialize(t *testing.T) {
	agent := NewTrendAgent(testConfig())
	if err := agent.RunStage(context.Background(), models.StageAggregate, nil); err == nil {
		t.Fatal("expected error before Initialize")
	}
}
