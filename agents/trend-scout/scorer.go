package trendscout

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"trend-stack/internal/models"
	"trend-stack/shared/logging"
	"trend-stack/shared/storage"
)

// Bounds on the momentum multiplier applied to demand.
const (
	minMomentumFactor = 0.1
	maxMomentumFactor = 3.0
)

// SupplyStats describes the existing videos competing for a keyword.
type SupplyStats struct {
	VideoCount    int
	AvgVideoAge   float64 // days
	TopVideoViews int64
}

// GapScore rates demand against supply. It never decreases when avgViews or
// momentum grow and never increases when the competing video count grows.
func GapScore(avgViews, momentum float64, supply SupplyStats) float64 {
	demand := math.Log10(1+math.Max(avgViews, 0)) * clamp(1+momentum/100, minMomentumFactor, maxMomentumFactor)

	freshness := 1.0
	if supply.VideoCount > 0 {
		freshness = 1 + 1/(1+math.Max(supply.AvgVideoAge, 0))
	}
	competition := (1 + math.Log10(1+float64(supply.VideoCount))) *
		(1 + math.Log10(1+float64(max(supply.TopVideoViews, 0)))/10) *
		freshness

	return round2(100 * demand / competition)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// supplyFor computes supply stats per keyword from the latest snapshot of
// every video. Only keywords present in want are tracked.
func supplyFor(snaps []models.VideoSnapshot, want map[string]struct{}, now time.Time) map[string]SupplyStats {
	type acc struct {
		count   int
		dated   int
		ageDays float64
		top     int64
	}
	accs := make(map[string]*acc, len(want))

	for _, s := range snaps {
		// Videos without a publish time count as supply but not toward age.
		dated := !s.PublishedAt.IsZero()
		age := math.Max(now.Sub(s.PublishedAt).Hours()/24, 0)
		for _, kw := range ExtractKeywords(s.Title, s.Tags) {
			if _, ok := want[kw]; !ok {
				continue
			}
			a, ok := accs[kw]
			if !ok {
				a = &acc{}
				accs[kw] = a
			}
			a.count++
			if dated {
				a.dated++
				a.ageDays += age
			}
			a.top = max(a.top, s.ViewCount)
		}
	}

	out := make(map[string]SupplyStats, len(accs))
	for kw, a := range accs {
		stats := SupplyStats{VideoCount: a.count, TopVideoViews: a.top}
		if a.dated > 0 {
			stats.AvgVideoAge = round2(a.ageDays / float64(a.dated))
		}
		out[kw] = stats
	}
	return out
}

// BuildGaps scores every trend against its supply and returns the gaps
// sorted by score, highest first.
func BuildGaps(trends []models.Trend, supplySnaps []models.VideoSnapshot, now time.Time) []models.ContentGap {
	want := make(map[string]struct{}, len(trends))
	for _, t := range trends {
		want[t.Keyword] = struct{}{}
	}
	supply := supplyFor(supplySnaps, want, now)

	gaps := make([]models.ContentGap, 0, len(trends))
	for _, t := range trends {
		sup := supply[t.Keyword]
		gaps = append(gaps, models.ContentGap{
			Keyword:       t.Keyword,
			Category:      t.Category,
			GapScore:      GapScore(t.AvgViews, t.Momentum, sup),
			SearchVolume:  t.SearchVolume,
			VideoCount:    sup.VideoCount,
			AvgVideoAge:   sup.AvgVideoAge,
			TopVideoViews: sup.TopVideoViews,
			TrendScore:    round2(t.Momentum),
			ComputedAt:    now,
		})
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].GapScore != gaps[j].GapScore {
			return gaps[i].GapScore > gaps[j].GapScore
		}
		return gaps[i].Keyword < gaps[j].Keyword
	})
	return gaps
}

// GapNotifier delivers the digest of the best gaps after a scoring run.
type GapNotifier interface {
	SendGapReport(report *models.GapReport) error
}

// ScoreResult is the outcome of one scoring run.
type ScoreResult struct {
	Trends  int
	Gaps    int
	Errors  int
	LastErr error
}

// Scorer regenerates the content gap table from the latest trends.
type Scorer struct {
	trends       *storage.TrendRepository
	snapshots    *storage.SnapshotRepository
	gaps         *storage.GapRepository
	period       models.Period
	supplyWindow time.Duration
	notifier     GapNotifier
	digestSize   int
	digestMin    float64
	now          func() time.Time
}

// ScorerConfig carries the scoring inputs that come from configuration.
type ScorerConfig struct {
	Period       models.Period
	SupplyWindow time.Duration
	Notifier     GapNotifier // optional
	DigestSize   int
	DigestMin    float64
}

func NewScorer(trends *storage.TrendRepository, snapshots *storage.SnapshotRepository, gaps *storage.GapRepository, cfg ScorerConfig, now func() time.Time) *Scorer {
	return &Scorer{
		trends:       trends,
		snapshots:    snapshots,
		gaps:         gaps,
		period:       cfg.Period,
		supplyWindow: cfg.SupplyWindow,
		notifier:     cfg.Notifier,
		digestSize:   cfg.DigestSize,
		digestMin:    cfg.DigestMin,
		now:          now,
	}
}

// Score replaces the gap table with a fresh ranking. With no trends yet the
// table is left untouched.
func (s *Scorer) Score(ctx context.Context) (ScoreResult, error) {
	var result ScoreResult
	now := s.now()

	trends, err := s.trends.LatestTrends(ctx, s.period)
	if err != nil {
		return result, fmt.Errorf("failed to read latest trends: %w", err)
	}
	result.Trends = len(trends)
	if len(trends) == 0 {
		logging.Info().Str("period", string(s.period)).Msg("No trends to score yet")
		return result, nil
	}

	supply, err := s.snapshots.LatestPerVideo(ctx, now.Add(-s.supplyWindow), now.Add(time.Second))
	if err != nil {
		return result, fmt.Errorf("failed to read supply snapshots: %w", err)
	}

	gaps := BuildGaps(trends, supply, now)
	if err := s.gaps.ReplaceGaps(ctx, gaps); err != nil {
		return result, fmt.Errorf("failed to replace content gaps: %w", err)
	}
	result.Gaps = len(gaps)

	logging.Info().
		Int("trends", result.Trends).
		Int("gaps", result.Gaps).
		Int("supply_videos", len(supply)).
		Msg("Content gaps scored")

	if s.notifier != nil {
		if err := s.notifier.SendGapReport(s.digest(gaps, now)); err != nil {
			result.Errors++
			result.LastErr = fmt.Errorf("failed to send gap digest: %w", err)
			logging.Warn().Err(err).Msg("Failed to send gap digest")
		}
	}
	return result, nil
}

// digest picks the top gaps at or above the digest threshold.
func (s *Scorer) digest(gaps []models.ContentGap, now time.Time) *models.GapReport {
	report := &models.GapReport{Date: now, Total: len(gaps)}
	for i := range gaps {
		if s.digestSize > 0 && len(report.Gaps) >= s.digestSize {
			break
		}
		if gaps[i].GapScore < s.digestMin {
			break
		}
		report.Gaps = append(report.Gaps, &gaps[i])
	}
	return report
}
