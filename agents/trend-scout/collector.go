package trendscout

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"trend-stack/internal/models"
	"trend-stack/shared/logging"
	"trend-stack/shared/storage"
)

// CollectResult is the outcome of one collection pass.
type CollectResult struct {
	Processed int
	Created   int
	Errors    int
	// LastErr is the most recent per-item failure, nil when Errors is 0.
	LastErr error
}

func (r *CollectResult) fail(err error) {
	r.Errors++
	r.LastErr = err
}

// Collector turns candidate ids into persisted snapshots.
type Collector struct {
	provider    MetadataProvider
	snapshots   *storage.SnapshotRepository
	batchSize   int
	concurrency int
	now         func() time.Time
}

func NewCollector(provider MetadataProvider, snapshots *storage.SnapshotRepository, batchSize, concurrency int, now func() time.Time) *Collector {
	if batchSize <= 0 {
		batchSize = 50
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Collector{
		provider:    provider,
		snapshots:   snapshots,
		batchSize:   batchSize,
		concurrency: concurrency,
		now:         now,
	}
}

// ComputeSnapshot derives a snapshot from provider statistics captured at now.
// Videos younger than an hour are treated as one hour old.
func ComputeSnapshot(stats *models.VideoStats, now time.Time) *models.VideoSnapshot {
	hours := now.Sub(stats.PublishedAt).Hours()
	if hours < 1 {
		hours = 1
	}

	views := stats.ViewCount
	if views < 0 {
		views = 0
	}

	var engagement float64
	if views > 0 {
		engagement = float64(stats.LikeCount+stats.CommentCount) / float64(views) * 100
	}

	return &models.VideoSnapshot{
		VideoID:        stats.VideoID,
		ChannelID:      stats.ChannelID,
		ViewCount:      views,
		LikeCount:      stats.LikeCount,
		CommentCount:   stats.CommentCount,
		Title:          stats.Title,
		Tags:           stats.Tags,
		PublishedAt:    stats.PublishedAt,
		SnapshotDate:   now,
		ViewVelocity:   float64(views) / hours,
		EngagementRate: engagement,
	}
}

type fetchedBatch struct {
	ids   []string
	stats map[string]*models.VideoStats
	err   error
}

// Collect fetches every id in batches and inserts one snapshot per video the
// provider returned. Fetch and insert failures are counted per id.
func (c *Collector) Collect(ctx context.Context, ids []string) CollectResult {
	result := CollectResult{Processed: len(ids)}
	if len(ids) == 0 {
		return result
	}

	var batches []*fetchedBatch
	for start := 0; start < len(ids); start += c.batchSize {
		end := min(start+c.batchSize, len(ids))
		batches = append(batches, &fetchedBatch{ids: ids[start:end]})
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, b := range batches {
		g.Go(func() error {
			b.stats, b.err = c.provider.FetchVideos(ctx, b.ids)
			return nil
		})
	}
	_ = g.Wait()

	now := c.now()
	for _, b := range batches {
		if b.err != nil {
			err := fmt.Errorf("%w: fetching %d videos: %v", ErrExternalFetch, len(b.ids), b.err)
			logging.Warn().Err(err).Strs("video_ids", b.ids).Msg("Batch fetch failed, skipping")
			for range b.ids {
				result.fail(err)
			}
			continue
		}

		for _, id := range b.ids {
			stats, ok := b.stats[id]
			if !ok {
				result.fail(fmt.Errorf("%w: video %s not returned", ErrExternalFetch, id))
				logging.Warn().Str("video_id", id).Msg("Video not returned by provider")
				continue
			}

			snap := ComputeSnapshot(stats, now)
			if err := c.snapshots.InsertSnapshot(ctx, snap); err != nil {
				result.fail(err)
				logging.Error().Err(err).Str("video_id", id).Msg("Failed to store snapshot")
				continue
			}
			result.Created++
		}
	}

	logging.Info().
		Int("processed", result.Processed).
		Int("created", result.Created).
		Int("errors", result.Errors).
		Msg("Snapshot collection finished")
	return result
}
