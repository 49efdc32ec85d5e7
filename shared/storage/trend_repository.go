package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trend-stack/internal/models"
)

const trendColumns = `id, keyword, category, period, window_start, window_end, video_count,
	avg_views, avg_engagement, momentum, search_volume, last_updated`

// TrendSort selects the ordering of ListTrends.
type TrendSort string

const (
	SortRecent   TrendSort = "recent"
	SortMomentum TrendSort = "momentum"
)

// TrendFilter narrows ListTrends. A nil Category matches every category.
type TrendFilter struct {
	Period   models.Period
	Category *models.Category
	Sort     TrendSort
	Limit    int
}

// TrendRepository stores one aggregate row per (keyword, period, day).
type TrendRepository struct {
	db *DB
}

// NewTrendRepository creates a new trend repository
func NewTrendRepository(db *DB) *TrendRepository {
	return &TrendRepository{db: db}
}

// UpsertTrend inserts the trend for its (keyword, period, day) key or updates
// the existing row in place. It reports whether a new row was created.
func (r *TrendRepository) UpsertTrend(ctx context.Context, t *models.Trend) (bool, error) {
	day := t.Day()
	var created bool

	err := r.db.withRetry(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM trends WHERE keyword = ? AND period = ? AND day = ?",
			t.Keyword, string(t.Period), day).Scan(&id)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx, `
				INSERT INTO trends (keyword, category, period, day, window_start, window_end, video_count,
					avg_views, avg_engagement, momentum, search_volume, last_updated)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, t.Keyword, string(t.Category), string(t.Period), day, t.WindowStart.Unix(), t.WindowEnd.Unix(),
				t.VideoCount, t.AvgViews, t.AvgEngagement, t.Momentum, t.SearchVolume, t.LastUpdated.Unix())
			if err != nil {
				return err
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			// Same day: refresh the metrics, keep the original window start.
			_, err = tx.ExecContext(ctx, `
				UPDATE trends
				SET category = ?, window_end = ?, video_count = ?, avg_views = ?, avg_engagement = ?,
					momentum = ?, search_volume = ?, last_updated = ?
				WHERE id = ?
			`, string(t.Category), t.WindowEnd.Unix(), t.VideoCount, t.AvgViews, t.AvgEngagement,
				t.Momentum, t.SearchVolume, t.LastUpdated.Unix(), id)
			if err != nil {
				return err
			}
			created = false
		}
		t.ID = id
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to upsert trend %q: %v", ErrPersistence, t.Keyword, err)
	}
	return created, nil
}

// LatestDay returns the most recent day that has trend rows for the period,
// or "" when there are none.
func (r *TrendRepository) LatestDay(ctx context.Context, period models.Period) (string, error) {
	var day sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT MAX(day) FROM trends WHERE period = ?", string(period)).Scan(&day)
	if err != nil {
		return "", fmt.Errorf("failed to query latest trend day: %w", err)
	}
	return day.String, nil
}

// TrendsForDay returns every trend of the period recorded on the given day.
func (r *TrendRepository) TrendsForDay(ctx context.Context, period models.Period, day string) ([]models.Trend, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+trendColumns+" FROM trends WHERE period = ? AND day = ? ORDER BY keyword",
		string(period), day)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	return scanTrends(rows)
}

// LatestTrends returns the trends of the most recent day for the period.
func (r *TrendRepository) LatestTrends(ctx context.Context, period models.Period) ([]models.Trend, error) {
	day, err := r.LatestDay(ctx, period)
	if err != nil || day == "" {
		return nil, err
	}
	return r.TrendsForDay(ctx, period, day)
}

// ListTrends serves the read API.
func (r *TrendRepository) ListTrends(ctx context.Context, f TrendFilter) ([]models.Trend, error) {
	var (
		where []string
		args  []any
	)
	if f.Period != "" {
		where = append(where, "period = ?")
		args = append(args, string(f.Period))
	}
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*f.Category))
	}

	query := "SELECT " + trendColumns + " FROM trends"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch f.Sort {
	case SortMomentum:
		query += " ORDER BY momentum DESC, last_updated DESC, keyword"
	default:
		query += " ORDER BY last_updated DESC, momentum DESC, keyword"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trends: %w", err)
	}
	return scanTrends(rows)
}

func scanTrends(rows *sql.Rows) ([]models.Trend, error) {
	defer rows.Close()

	var trends []models.Trend
	for rows.Next() {
		var (
			t                       models.Trend
			category, period        string
			start, end, lastUpdated int64
		)
		if err := rows.Scan(&t.ID, &t.Keyword, &category, &period, &start, &end, &t.VideoCount,
			&t.AvgViews, &t.AvgEngagement, &t.Momentum, &t.SearchVolume, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan trend: %w", err)
		}
		t.Category = models.Category(category)
		t.Period = models.Period(period)
		t.WindowStart = time.Unix(start, 0).UTC()
		t.WindowEnd = time.Unix(end, 0).UTC()
		t.LastUpdated = time.Unix(lastUpdated, 0).UTC()
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trends: %w", err)
	}
	return trends, nil
}
