package trendscout

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"trend-stack/shared/config"
	"trend-stack/shared/logging"
	"trend-stack/shared/storage"
)

// Selection is the candidate list for one collect run.
type Selection struct {
	IDs           []string
	Trending      int
	ChannelVideos int
	ChannelErrors int
	// LastErr is the most recent channel failure.
	LastErr error
}

// Selector picks the bounded set of videos worth sampling this run.
type Selector struct {
	provider  MetadataProvider
	snapshots *storage.SnapshotRepository
	channels  *storage.ChannelRepository
	cfg       config.PipelineConfig
	now       func() time.Time
}

func NewSelector(provider MetadataProvider, snapshots *storage.SnapshotRepository, channels *storage.ChannelRepository, cfg config.PipelineConfig, now func() time.Time) *Selector {
	return &Selector{
		provider:  provider,
		snapshots: snapshots,
		channels:  channels,
		cfg:       cfg,
		now:       now,
	}
}

// Select returns the deduplicated, capped candidate ids. An error means the
// inputs could not be read at all; per-channel failures are only counted.
func (s *Selector) Select(ctx context.Context) (Selection, error) {
	var sel Selection
	now := s.now()

	var trending []string
	if s.cfg.TrendingLimit > 0 {
		top, err := s.snapshots.TopByVelocity(ctx, now.Add(-s.cfg.TrendingLookback), s.cfg.TrendingLimit)
		if err != nil {
			return sel, fmt.Errorf("failed to read trending snapshots: %w", err)
		}
		for _, snap := range top {
			trending = append(trending, snap.VideoID)
		}
	}
	sel.Trending = len(trending)

	var uploads [][]string
	if s.cfg.MaxChannels > 0 && s.cfg.UploadsPerChannel > 0 {
		channels, err := s.channels.NextChannels(ctx, s.cfg.MaxChannels)
		if err != nil {
			return sel, fmt.Errorf("failed to read tracked channels: %w", err)
		}

		ids := make([]string, len(channels))
		for i, ch := range channels {
			ids[i] = ch.ChannelID
		}

		for _, res := range s.fetchUploads(ctx, ids) {
			// Attempted channels rotate to the back whether or not the fetch succeeded.
			if err := s.channels.MarkSampled(ctx, res.channelID, now); err != nil {
				logging.Warn().Err(err).Str("channel_id", res.channelID).Msg("Failed to mark channel sampled")
			}
			if res.err != nil {
				sel.ChannelErrors++
				sel.LastErr = fmt.Errorf("%w: channel %s: %v", ErrExternalFetch, res.channelID, res.err)
				logging.Warn().Err(res.err).Str("channel_id", res.channelID).Msg("Failed to fetch channel uploads, skipping")
				continue
			}
			uploads = append(uploads, res.ids)
			sel.ChannelVideos += len(res.ids)
		}
	}

	sel.IDs = mergeCandidates(uploads, trending, s.cfg.MaxCandidates)

	logging.Info().
		Int("trending", sel.Trending).
		Int("channel_videos", sel.ChannelVideos).
		Int("channel_errors", sel.ChannelErrors).
		Int("selected", len(sel.IDs)).
		Msg("Candidates selected")
	return sel, nil
}

type channelUploads struct {
	channelID string
	ids       []string
	err       error
}

// fetchUploads asks the provider for each channel's recent uploads with at
// most cfg.Concurrency requests in flight. Results keep the input order.
func (s *Selector) fetchUploads(ctx context.Context, channelIDs []string) []channelUploads {
	results := make([]channelUploads, len(channelIDs))

	var g errgroup.Group
	g.SetLimit(max(s.cfg.Concurrency, 1))
	for i, id := range channelIDs {
		g.Go(func() error {
			ids, err := s.provider.RecentUploads(ctx, id, s.cfg.UploadsPerChannel)
			if len(ids) > s.cfg.UploadsPerChannel {
				ids = ids[:s.cfg.UploadsPerChannel]
			}
			results[i] = channelUploads{channelID: id, ids: ids, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// mergeCandidates unions channel uploads (first) and trending ids, keeping the
// first occurrence of each id, and stops at limit.
func mergeCandidates(uploads [][]string, trending []string, limit int) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(id string) bool {
		if len(out) >= limit {
			return false
		}
		if id == "" {
			return true
		}
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
		out = append(out, id)
		return true
	}

	for _, ids := range uploads {
		for _, id := range ids {
			if !add(id) {
				return out
			}
		}
	}
	for _, id := range trending {
		if !add(id) {
			return out
		}
	}
	return out
}
