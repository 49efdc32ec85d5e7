package trendscout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"trend-stack/internal/models"
	"trend-stack/shared/logging"
	"trend-stack/shared/storage"
)

// The prior comparison band spans this many windows before the current one.
const priorBandWindows = 6

// Keywords falling faster than this with engagement below minEngagement are dropped.
const (
	collapseMomentum = -50.0
	minEngagement    = 1.0
)

// AggregateResult is the outcome of aggregating one period.
type AggregateResult struct {
	Period     models.Period
	Snapshots  int
	Candidates int // keywords seen in the window
	Created    int
	Updated    int
	Errors     int
	LastErr    error
}

// Aggregator turns windowed snapshots into per-day trend rows.
type Aggregator struct {
	snapshots *storage.SnapshotRepository
	trends    *storage.TrendRepository
	minVideos int
	now       func() time.Time
}

func NewAggregator(snapshots *storage.SnapshotRepository, trends *storage.TrendRepository, minVideos int, now func() time.Time) *Aggregator {
	if minVideos < 1 {
		minVideos = 1
	}
	return &Aggregator{
		snapshots: snapshots,
		trends:    trends,
		minVideos: minVideos,
		now:       now,
	}
}

// Aggregate computes every trend for the period in memory and then writes
// them one keyed upsert at a time. Read failures abort the run; write
// failures are counted per keyword.
func (a *Aggregator) Aggregate(ctx context.Context, period models.Period) (AggregateResult, error) {
	result := AggregateResult{Period: period}

	now := a.now()
	window := period.Window()
	windowStart := now.Add(-window)
	priorStart := windowStart.Add(-priorBandWindows * window)

	// LatestPerVideo is half-open; the extra second keeps snapshots taken at now.
	current, err := a.snapshots.LatestPerVideo(ctx, windowStart, now.Add(time.Second))
	if err != nil {
		return result, fmt.Errorf("failed to read window snapshots: %w", err)
	}
	prior, err := a.snapshots.LatestPerVideo(ctx, priorStart, windowStart)
	if err != nil {
		return result, fmt.Errorf("failed to read prior snapshots: %w", err)
	}
	result.Snapshots = len(current)

	trends, candidates := BuildTrends(current, prior, TrendParams{
		Period:      period,
		WindowStart: windowStart,
		WindowEnd:   now,
		MinVideos:   a.minVideos,
	})
	result.Candidates = candidates

	for i := range trends {
		t := &trends[i]
		created, err := a.trends.UpsertTrend(ctx, t)
		if err != nil {
			result.Errors++
			result.LastErr = err
			logging.Error().Err(err).Str("keyword", t.Keyword).Msg("Failed to upsert trend")
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	logging.Info().
		Str("period", string(period)).
		Int("snapshots", result.Snapshots).
		Int("keywords", candidates).
		Int("trends", len(trends)).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errors", result.Errors).
		Msg("Trend aggregation finished")
	return result, nil
}

// TrendParams describes the window a trend set is built for.
type TrendParams struct {
	Period      models.Period
	WindowStart time.Time
	WindowEnd   time.Time
	MinVideos   int
}

type keywordGroup struct {
	videos map[string]*models.VideoSnapshot
}

// groupByKeyword maps each keyword to the latest snapshot of every video
// carrying it.
func groupByKeyword(snaps []models.VideoSnapshot) map[string]*keywordGroup {
	groups := make(map[string]*keywordGroup)
	for i := range snaps {
		s := &snaps[i]
		for _, kw := range ExtractKeywords(s.Title, s.Tags) {
			g, ok := groups[kw]
			if !ok {
				g = &keywordGroup{videos: make(map[string]*models.VideoSnapshot)}
				groups[kw] = g
			}
			if prev, ok := g.videos[s.VideoID]; !ok || s.SnapshotDate.After(prev.SnapshotDate) {
				g.videos[s.VideoID] = s
			}
		}
	}
	return groups
}

func (g *keywordGroup) avgViews() float64 {
	if len(g.videos) == 0 {
		return 0
	}
	var total int64
	for _, s := range g.videos {
		total += s.ViewCount
	}
	return float64(total) / float64(len(g.videos))
}

func (g *keywordGroup) avgEngagement() float64 {
	if len(g.videos) == 0 {
		return 0
	}
	var total float64
	for _, s := range g.videos {
		total += s.EngagementRate
	}
	return total / float64(len(g.videos))
}

// text is the keyword plus the titles and tags of its videos, used for
// categorization.
func (g *keywordGroup) text(keyword string) string {
	var b strings.Builder
	b.WriteString(keyword)
	for _, s := range g.videos {
		b.WriteByte(' ')
		b.WriteString(s.Title)
		for _, tag := range s.Tags {
			b.WriteByte(' ')
			b.WriteString(tag)
		}
	}
	return b.String()
}

// Momentum is the percent change of avgViews against the prior band, or 0
// when the prior band has no views.
func Momentum(avgViews, previousAvgViews float64) float64 {
	if previousAvgViews <= 0 {
		return 0
	}
	return (avgViews - previousAvgViews) / previousAvgViews * 100
}

// excluded reports whether a keyword is collapsing with no audience left.
func excluded(momentum, avgEngagement float64) bool {
	return momentum < collapseMomentum && avgEngagement < minEngagement
}

// BuildTrends aggregates the current window against the prior band. It
// returns the qualifying trends sorted by keyword and the number of distinct
// keywords seen in the window.
func BuildTrends(current, prior []models.VideoSnapshot, p TrendParams) ([]models.Trend, int) {
	groups := groupByKeyword(current)
	priorGroups := groupByKeyword(prior)

	var trends []models.Trend
	for kw, g := range groups {
		count := len(g.videos)
		if count < p.MinVideos {
			continue
		}

		avgViews := g.avgViews()
		avgEngagement := g.avgEngagement()

		var previous float64
		if pg, ok := priorGroups[kw]; ok {
			previous = pg.avgViews()
		}
		momentum := Momentum(avgViews, previous)

		if excluded(momentum, avgEngagement) {
			logging.Debug().Str("keyword", kw).Float64("momentum", momentum).
				Float64("avg_engagement", avgEngagement).Msg("Dropping collapsing keyword")
			continue
		}

		trends = append(trends, models.Trend{
			Keyword:       kw,
			Category:      Categorize(g.text(kw)),
			Period:        p.Period,
			WindowStart:   p.WindowStart,
			WindowEnd:     p.WindowEnd,
			VideoCount:    count,
			AvgViews:      avgViews,
			AvgEngagement: avgEngagement,
			Momentum:      momentum,
			SearchVolume:  int64(count) * models.SearchVolumePerVideo,
			LastUpdated:   p.WindowEnd,
		})
	}

	sort.Slice(trends, func(i, j int) bool { return trends[i].Keyword < trends[j].Keyword })
	return trends, len(groups)
}
