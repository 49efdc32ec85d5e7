package models

import "time"

// VideoStats is the public metadata and statistics the upstream provider
// returns for one video at the moment it was fetched.
type VideoStats struct {
	VideoID      string    `json:"video_id"`
	ChannelID    string    `json:"channel_id"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	PublishedAt  time.Time `json:"published_at"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
}

// VideoSnapshot is one immutable capture of a video's public metrics.
// Rows are only ever inserted; several rows for the same video form a time
// series ordered by SnapshotDate.
type VideoSnapshot struct {
	ID             int64     `json:"id"`
	VideoID        string    `json:"video_id"`
	ChannelID      string    `json:"channel_id"`
	ViewCount      int64     `json:"view_count"`
	LikeCount      int64     `json:"like_count"`
	CommentCount   int64     `json:"comment_count"`
	Title          string    `json:"title"`
	Tags           []string  `json:"tags"`
	PublishedAt    time.Time `json:"published_at"`
	SnapshotDate   time.Time `json:"snapshot_date"`
	ViewVelocity   float64   `json:"view_velocity"`   // views per hour since publish
	EngagementRate float64   `json:"engagement_rate"` // percent
}

// Channel is a tracked upload source and the last time its uploads were sampled.
type Channel struct {
	ChannelID     string     `json:"channel_id"`
	LastSampledAt *time.Time `json:"last_sampled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
