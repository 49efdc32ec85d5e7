package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"trend-stack/internal/models"
)

const snapshotColumns = `id, video_id, channel_id, view_count, like_count, comment_count,
	title, tags, published_at, snapshot_date, view_velocity, engagement_rate`

// SnapshotRepository stores the append-only video snapshot series.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// InsertSnapshot appends one snapshot and sets its ID. Existing rows are never
// touched.
func (r *SnapshotRepository) InsertSnapshot(ctx context.Context, s *models.VideoSnapshot) error {
	tags, err := json.Marshal(nonNilTags(s.Tags))
	if err != nil {
		return fmt.Errorf("%w: failed to encode tags for %s: %v", ErrPersistence, s.VideoID, err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO video_snapshots (video_id, channel_id, view_count, like_count, comment_count,
			title, tags, published_at, snapshot_date, view_velocity, engagement_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.VideoID, s.ChannelID, s.ViewCount, s.LikeCount, s.CommentCount,
		s.Title, string(tags), unixOrZero(s.PublishedAt), unixOrZero(s.SnapshotDate),
		s.ViewVelocity, s.EngagementRate)
	if err != nil {
		return fmt.Errorf("%w: failed to insert snapshot for %s: %v", ErrPersistence, s.VideoID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: failed to read snapshot id: %v", ErrPersistence, err)
	}
	s.ID = id
	return nil
}

// TopByVelocity returns at most limit snapshots taken since the given time,
// one per video (its fastest snapshot), fastest first.
func (r *SnapshotRepository) TopByVelocity(ctx context.Context, since time.Time, limit int) ([]models.VideoSnapshot, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM (
			SELECT `+snapshotColumns+`,
				ROW_NUMBER() OVER (PARTITION BY video_id ORDER BY view_velocity DESC, snapshot_date DESC, id DESC) AS rn
			FROM video_snapshots
			WHERE snapshot_date >= ?
		)
		WHERE rn = 1
		ORDER BY view_velocity DESC, video_id
		LIMIT ?
	`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top snapshots: %w", err)
	}
	return scanSnapshots(rows)
}

// LatestPerVideo returns the most recent snapshot of every video sampled in
// [from, to).
func (r *SnapshotRepository) LatestPerVideo(ctx context.Context, from, to time.Time) ([]models.VideoSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM (
			SELECT `+snapshotColumns+`,
				ROW_NUMBER() OVER (PARTITION BY video_id ORDER BY snapshot_date DESC, id DESC) AS rn
			FROM video_snapshots
			WHERE snapshot_date >= ? AND snapshot_date < ?
		)
		WHERE rn = 1
		ORDER BY video_id
	`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	return scanSnapshots(rows)
}

// CountForVideo returns how many snapshots exist for a video.
func (r *SnapshotRepository) CountForVideo(ctx context.Context, videoID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM video_snapshots WHERE video_id = ?", videoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

func scanSnapshots(rows *sql.Rows) ([]models.VideoSnapshot, error) {
	defer rows.Close()

	var snapshots []models.VideoSnapshot
	for rows.Next() {
		var (
			s                   models.VideoSnapshot
			tags                string
			published, snapshot int64
		)
		if err := rows.Scan(&s.ID, &s.VideoID, &s.ChannelID, &s.ViewCount, &s.LikeCount, &s.CommentCount,
			&s.Title, &tags, &published, &snapshot, &s.ViewVelocity, &s.EngagementRate); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", s.VideoID, err)
		}
		s.PublishedAt = fromUnix(published)
		s.SnapshotDate = fromUnix(snapshot)
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return snapshots, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
