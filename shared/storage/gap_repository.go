package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"trend-stack/internal/models"
)

// GapFilter narrows ListGaps. A nil Category matches every category.
type GapFilter struct {
	Category *models.Category
	MinScore float64
	Limit    int
}

// GapRepository stores the current content gap ranking.
type GapRepository struct {
	db *DB
}

// NewGapRepository creates a new gap repository
func NewGapRepository(db *DB) *GapRepository {
	return &GapRepository{db: db}
}

// ReplaceGaps atomically swaps the whole gap table for the given set.
// Readers observe either the previous set or the new one.
func (r *GapRepository) ReplaceGaps(ctx context.Context, gaps []models.ContentGap) error {
	err := r.db.withRetry(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM content_gaps"); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO content_gaps (keyword, category, gap_score, search_volume, video_count,
				avg_video_age, top_video_views, trend_score, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range gaps {
			g := &gaps[i]
			res, err := stmt.ExecContext(ctx, g.Keyword, string(g.Category), g.GapScore, g.SearchVolume,
				g.VideoCount, g.AvgVideoAge, g.TopVideoViews, g.TrendScore, g.ComputedAt.Unix())
			if err != nil {
				return fmt.Errorf("gap %q: %w", g.Keyword, err)
			}
			if g.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to replace content gaps: %v", ErrPersistence, err)
	}
	return nil
}

// ListGaps returns gaps sorted by score, highest first.
func (r *GapRepository) ListGaps(ctx context.Context, f GapFilter) ([]models.ContentGap, error) {
	where := []string{"gap_score >= ?"}
	args := []any{f.MinScore}
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*f.Category))
	}

	query := `SELECT id, keyword, category, gap_score, search_volume, video_count, avg_video_age,
		top_video_views, trend_score, computed_at
		FROM content_gaps WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY gap_score DESC, keyword`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list content gaps: %w", err)
	}
	defer rows.Close()

	var gaps []models.ContentGap
	for rows.Next() {
		var (
			g        models.ContentGap
			category string
			computed int64
		)
		if err := rows.Scan(&g.ID, &g.Keyword, &category, &g.GapScore, &g.SearchVolume, &g.VideoCount,
			&g.AvgVideoAge, &g.TopVideoViews, &g.TrendScore, &computed); err != nil {
			return nil, fmt.Errorf("failed to scan content gap: %w", err)
		}
		g.Category = models.Category(category)
		g.ComputedAt = fromUnix(computed)
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate content gaps: %w", err)
	}
	return gaps, nil
}
