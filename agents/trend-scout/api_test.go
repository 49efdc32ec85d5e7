package trendscout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"trend-stack/internal/models"
)

type apiResponse struct {
	Status string            `json:"status"`
	Items  []json.RawMessage `json:"items"`
	Error  string            `json:"error"`

	body string
}

func serveAPI(t *testing.T, agent *TrendAgent, target string) (int, apiResponse) {
	t.Helper()
	r := chi.NewRouter()
	agent.Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON from %s: %v (%s)", target, err, rec.Body.String())
	}
	resp.body = rec.Body.String()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	return rec.Code, resp
}

func TestAPIEmptyReturnsNoData(t *testing.T) {
	agent := newTestAgent(t, testConfig())

	for _, target := range []string{"/trends", "/gaps"} {
		code, resp := serveAPI(t, agent, target)
		if code != http.StatusOK || resp.Status != statusNoData {
			t.Errorf("%s = %d %q, want 200 no_data", target, code, resp.Status)
		}
		if !strings.Contains(resp.body, `"items":[]`) {
			t.Errorf("%s body = %s, want an empty items array", target, resp.body)
		}
	}
}

func TestAPIFilters(t *testing.T) {
	ctx := context.Background()
	agent := newTestAgent(t, testConfig())

	for _, tr := range []models.Trend{
		{Keyword: "drone", Category: models.CategoryTechnology, Momentum: 10},
		{Keyword: "speedrun", Category: models.CategoryGaming, Momentum: 80},
		{Keyword: "sourdough", Momentum: -5},
	} {
		tr.Period = models.PeriodDaily
		tr.WindowStart = testNow.Add(-24 * time.Hour)
		tr.WindowEnd = testNow
		tr.LastUpdated = testNow
		if _, err := agent.trends.UpsertTrend(ctx, &tr); err != nil {
			t.Fatalf("UpsertTrend() error = %v", err)
		}
	}
	if err := agent.gaps.ReplaceGaps(ctx, []models.ContentGap{
		{Keyword: "drone", Category: models.CategoryTechnology, GapScore: 120, ComputedAt: testNow},
		{Keyword: "speedrun", Category: models.CategoryGaming, GapScore: 40, ComputedAt: testNow},
		{Keyword: "sourdough", GapScore: 75, ComputedAt: testNow},
	}); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	tests := []struct {
		target    string
		wantCode  int
		wantFirst string
		wantCount int
	}{
		{"/trends", http.StatusOK, "", 3},
		{"/trends?sort=momentum", http.StatusOK, "speedrun", 3},
		{"/trends?category=gaming", http.StatusOK, "speedrun", 1},
		{"/trends?category=none", http.StatusOK, "sourdough", 1},
		{"/trends?sort=momentum&limit=1", http.StatusOK, "speedrun", 1},
		{"/trends?period=weekly", http.StatusOK, "", 0},
		{"/gaps", http.StatusOK, "drone", 3},
		{"/gaps?min_score=50", http.StatusOK, "drone", 2},
		{"/gaps?category=gaming&min_score=50", http.StatusOK, "", 0},
		{"/gaps?limit=1", http.StatusOK, "drone", 1},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			code, resp := serveAPI(t, agent, tt.target)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d", code, tt.wantCode)
			}
			if len(resp.Items) != tt.wantCount {
				t.Fatalf("got %d items, want %d", len(resp.Items), tt.wantCount)
			}
			if tt.wantCount == 0 {
				if resp.Status != statusNoData {
					t.Errorf("status = %q, want no_data", resp.Status)
				}
				return
			}
			if resp.Status != statusOK {
				t.Errorf("status = %q, want ok", resp.Status)
			}
			if tt.wantFirst == "" {
				return
			}
			var first struct {
				Keyword string `json:"keyword"`
			}
			if err := json.Unmarshal(resp.Items[0], &first); err != nil {
				t.Fatalf("decode item: %v", err)
			}
			if first.Keyword != tt.wantFirst {
				t.Errorf("first keyword = %q, want %q", first.Keyword, tt.wantFirst)
			}
		})
	}
}

func TestAPIRejectsBadParameters(t *testing.T) {
	agent := newTestAgent(t, testConfig())

	for _, target := range []string{
		"/trends?period=hourly",
		"/trends?sort=views",
		"/trends?category=sports",
		"/trends?limit=0",
		"/trends?limit=abc",
		"/trends?limit=501",
		"/gaps?min_score=high",
		"/gaps?min_score=-1",
		"/gaps?category=sports",
		"/gaps?limit=-3",
	} {
		code, resp := serveAPI(t, agent, target)
		if code != http.StatusBadRequest || resp.Status != statusError || resp.Error == "" {
			t.Errorf("%s = %d %+v, want 400 with an error", target, code, resp)
		}
	}
}

func TestAPIBeforeInitialize(t *testing.T) {
	agent := NewTrendAgent(testConfig())
	code, resp := serveAPI(t, agent, "/gaps")
	if code != http.StatusServiceUnavailable || resp.Status != statusError {
		t.Errorf("/gaps = %d %+v, want 503", code, resp)
	}
}

func TestAPIRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Monitoring.APIRateLimit = 2
	agent := newTestAgent(t, cfg)

	r := chi.NewRouter()
	agent.Routes(r)

	var codes []int
	for range 3 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gaps", nil))
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("status codes = %v, want %v", codes, want)
		}
	}
}
