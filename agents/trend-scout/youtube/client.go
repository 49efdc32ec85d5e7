package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"trend-stack/internal/models"
	"trend-stack/shared/config"
	"trend-stack/shared/logging"
	"trend-stack/shared/metrics"
)

// MaxIDsPerCall is the Data API limit on ids in one videos.list request.
const MaxIDsPerCall = 50

// Consecutive upstream failures before the breaker opens.
const breakerThreshold = 5

type Client struct {
	service *youtube.Service
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]

	mu      sync.Mutex
	uploads map[string]string // channelID -> uploads playlist ID
}

// NewClient authenticates with an API key when one is configured and falls
// back to the OAuth device flow otherwise.
func NewClient(ctx context.Context, cfg *config.YouTubeConfig) (*Client, error) {
	if cfg.APIKey != "" {
		return NewClientWithOptions(ctx, cfg, option.WithAPIKey(cfg.APIKey))
	}

	oc := oauthConfig(cfg)
	token, err := getToken(ctx, oc, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth token: %w", err)
	}

	// Authenticated HTTP client that refreshes and persists the token
	httpClient := oauth2.NewClient(ctx, &tokenSaver{
		config:    oc,
		token:     token,
		tokenFile: cfg.TokenFile,
	})
	return NewClientWithOptions(ctx, cfg, option.WithHTTPClient(httpClient))
}

// NewClientWithOptions builds a client from explicit service options.
func NewClientWithOptions(ctx context.Context, cfg *config.YouTubeConfig, opts ...option.ClientOption) (*Client, error) {
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "youtube",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerThreshold
			},
			IsSuccessful: isSuccessful,
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("Circuit breaker state changed")
			},
		}),
		uploads: make(map[string]string),
	}, nil
}

// 4xx responses other than 429 don't count toward opening the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
	}
	return false
}

// execute runs one API call behind the rate limiter and the circuit breaker.
func execute[T any](ctx context.Context, c *Client, call string, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%s: %w", call, err)
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(call, "error").Inc()
		return zero, fmt.Errorf("%s: %w", call, err)
	}
	metrics.ProviderRequests.WithLabelValues(call, "ok").Inc()
	return res.(T), nil
}

// FetchVideos returns current statistics for up to MaxIDsPerCall videos.
// Ids unknown to the API, or returned without a valid publish time, are
// absent from the result.
func (c *Client) FetchVideos(ctx context.Context, ids []string) (map[string]*models.VideoStats, error) {
	if len(ids) == 0 {
		return map[string]*models.VideoStats{}, nil
	}
	if len(ids) > MaxIDsPerCall {
		return nil, fmt.Errorf("videos.list accepts at most %d ids, got %d", MaxIDsPerCall, len(ids))
	}

	resp, err := execute(ctx, c, "videos.list", func() (*youtube.VideoListResponse, error) {
		return c.service.Videos.List([]string{"snippet", "statistics"}).
			Id(strings.Join(ids, ",")).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]*models.VideoStats, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		// Without a publish time neither velocity nor video age can be computed.
		publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			logging.Warn().Err(err).Str("video_id", item.Id).Msg("Dropping video with invalid publish time")
			continue
		}
		stats := &models.VideoStats{
			VideoID:     item.Id,
			ChannelID:   item.Snippet.ChannelId,
			Title:       item.Snippet.Title,
			Tags:        item.Snippet.Tags,
			PublishedAt: publishedAt,
		}
		if item.Statistics != nil {
			stats.ViewCount = int64(item.Statistics.ViewCount)
			stats.LikeCount = int64(item.Statistics.LikeCount)
			stats.CommentCount = int64(item.Statistics.CommentCount)
		}
		result[item.Id] = stats
	}
	return result, nil
}

// RecentUploads returns up to limit of the channel's most recent upload ids,
// newest first.
func (c *Client) RecentUploads(ctx context.Context, channelID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	playlistID, err := c.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, err
	}

	resp, err := execute(ctx, c, "playlistItems.list", func() (*youtube.PlaylistItemListResponse, error) {
		return c.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(int64(limit)).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, item := range resp.Items {
		if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
			ids = append(ids, item.ContentDetails.VideoId)
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (c *Client) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	c.mu.Lock()
	playlistID, ok := c.uploads[channelID]
	c.mu.Unlock()
	if ok {
		return playlistID, nil
	}

	resp, err := execute(ctx, c, "channels.list", func() (*youtube.ChannelListResponse, error) {
		return c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
	})
	if err != nil {
		return "", err
	}

	for _, channel := range resp.Items {
		if channel.ContentDetails != nil && channel.ContentDetails.RelatedPlaylists != nil {
			playlistID = channel.ContentDetails.RelatedPlaylists.Uploads
		}
	}
	if playlistID == "" {
		return "", fmt.Errorf("channel %s not found or has no uploads playlist", channelID)
	}

	c.mu.Lock()
	c.uploads[channelID] = playlistID
	c.mu.Unlock()
	return playlistID, nil
}
