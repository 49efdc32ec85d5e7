package models

import "time"

type Category string

const (
	CategoryNone          Category = ""
	CategoryTechnology    Category = "technology"
	CategoryGaming        Category = "gaming"
	CategoryEntertainment Category = "entertainment"
	CategoryEducation     Category = "education"
)

// ParseCategory accepts the stored label or "none".
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryTechnology, CategoryGaming, CategoryEntertainment, CategoryEducation:
		return Category(s), true
	case "none", CategoryNone:
		return CategoryNone, true
	}
	return CategoryNone, false
}

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Window returns the trailing aggregation window for the period.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodWeekly || p == PeriodMonthly
}

// SearchVolumePerVideo converts a trend's video count into its search volume proxy.
const SearchVolumePerVideo = 100

// Trend is the per-day aggregate of one keyword. At most one row exists per
// (Keyword, Period, Day()).
type Trend struct {
	ID            int64     `json:"id"`
	Keyword       string    `json:"keyword"`
	Category      Category  `json:"category"`
	Period        Period    `json:"period"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	VideoCount    int       `json:"video_count"`
	AvgViews      float64   `json:"avg_views"`
	AvgEngagement float64   `json:"avg_engagement"`
	Momentum      float64   `json:"momentum"` // percent vs. prior band
	SearchVolume  int64     `json:"search_volume"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Day is the calendar day (UTC) the trend row belongs to.
func (t Trend) Day() string {
	return DayKey(t.WindowEnd)
}

// DayKey formats the UTC calendar day used as part of the trend upsert key.
func DayKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
