package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"trend-stack/internal/models"
)

// ChannelRepository keeps the set of tracked channels and when each one was
// last sampled, so per-run channel caps rotate through the whole set.
type ChannelRepository struct {
	db *DB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// TrackChannels registers channel ids that are not yet tracked and returns
// how many were added.
func (r *ChannelRepository) TrackChannels(ctx context.Context, channelIDs []string) (int, error) {
	now := time.Now().Unix()
	added := 0
	err := r.db.withRetry(ctx, func(tx *sql.Tx) error {
		added = 0
		for _, id := range channelIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			res, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO channels (channel_id, created_at) VALUES (?, ?)", id, now)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to track channels: %v", ErrPersistence, err)
	}
	return added, nil
}

// NextChannels returns up to limit tracked channels, never-sampled first and
// then least recently sampled.
func (r *ChannelRepository) NextChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel_id, last_sampled_at, created_at
		FROM channels
		ORDER BY last_sampled_at IS NOT NULL, last_sampled_at, channel_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var (
			c       models.Channel
			sampled sql.NullInt64
			created int64
		)
		if err := rows.Scan(&c.ChannelID, &sampled, &created); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		if sampled.Valid {
			ts := fromUnix(sampled.Int64)
			c.LastSampledAt = &ts
		}
		c.CreatedAt = fromUnix(created)
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}
	return channels, nil
}

// MarkSampled records that the channel's uploads were fetched at the given time.
func (r *ChannelRepository) MarkSampled(ctx context.Context, channelID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE channels SET last_sampled_at = ? WHERE channel_id = ?", at.Unix(), channelID)
	if err != nil {
		return fmt.Errorf("%w: failed to mark channel %s sampled: %v", ErrPersistence, channelID, err)
	}
	return nil
}

// Count returns the number of tracked channels.
func (r *ChannelRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count channels: %w", err)
	}
	return count, nil
}
