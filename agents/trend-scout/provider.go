package trendscout

import (
	"context"
	"errors"

	"trend-stack/internal/models"
)

// ErrExternalFetch marks a per-item failure talking to the metadata provider.
// The item is skipped and counted; the stage keeps going.
var ErrExternalFetch = errors.New("external fetch failure")

// MetadataProvider is the upstream source of video statistics and channel
// uploads. youtube.Client implements it.
type MetadataProvider interface {
	// FetchVideos returns statistics keyed by video id. Ids the provider does
	// not know are absent from the map.
	FetchVideos(ctx context.Context, ids []string) (map[string]*models.VideoStats, error)
	RecentUploads(ctx context.Context, channelID string, limit int) ([]string, error)
}
