package models

import "time"

// ContentGap ranks a keyword by demand versus existing supply. The whole set is
// regenerated on every scoring run.
type ContentGap struct {
	ID            int64     `json:"id"`
	Keyword       string    `json:"keyword"`
	Category      Category  `json:"category"`
	GapScore      float64   `json:"gap_score"`
	SearchVolume  int64     `json:"search_volume"`
	VideoCount    int       `json:"video_count"`     // existing competing videos
	AvgVideoAge   float64   `json:"avg_video_age"`   // days
	TopVideoViews int64     `json:"top_video_views"` // best-performing competitor
	TrendScore    float64   `json:"trend_score"`     // momentum carried from the trend
	ComputedAt    time.Time `json:"computed_at"`
}

// GapReport is the digest sent after a scoring run.
type GapReport struct {
	Date  time.Time     `json:"date"`
	Gaps  []*ContentGap `json:"gaps"`
	Total int           `json:"total"`
}
