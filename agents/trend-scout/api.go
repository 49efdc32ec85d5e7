package trendscout

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"trend-stack/internal/models"
	"trend-stack/shared/logging"
	"trend-stack/shared/storage"
)

const (
	defaultListLimit = 50

	statusOK     = "ok"
	statusNoData = "no_data"
	statusError  = "error"
)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("query")
	})
	return v
}()

type trendsQuery struct {
	Period   string `query:"period" validate:"oneof=daily weekly monthly"`
	Category string `query:"category" validate:"omitempty,oneof=technology gaming entertainment education none"`
	Sort     string `query:"sort" validate:"oneof=recent momentum"`
	Limit    int    `query:"limit" validate:"min=1,max=500"`
}

type gapsQuery struct {
	Category string  `query:"category" validate:"omitempty,oneof=technology gaming entertainment education none"`
	MinScore float64 `query:"min_score" validate:"gte=0"`
	Limit    int     `query:"limit" validate:"min=1,max=500"`
}

type listResponse[T any] struct {
	Status string `json:"status"`
	Items  []T    `json:"items"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Routes mounts the read-only trend and gap endpoints.
func (a *TrendAgent) Routes(r chi.Router) {
	if limit := a.config.Monitoring.APIRateLimit; limit > 0 {
		r.Use(httprate.LimitByIP(limit, time.Minute))
	}
	r.Get("/trends", a.handleTrends)
	r.Get("/gaps", a.handleGaps)
}

func (a *TrendAgent) handleTrends(w http.ResponseWriter, r *http.Request) {
	q := trendsQuery{
		Period: string(models.PeriodDaily),
		Sort:   string(storage.SortRecent),
		Limit:  defaultListLimit,
	}
	values := r.URL.Query()
	if v := values.Get("period"); v != "" {
		q.Period = v
	}
	if v := values.Get("sort"); v != "" {
		q.Sort = v
	}
	q.Category = values.Get("category")
	if err := parseInt(values.Get("limit"), &q.Limit); err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if err := validateQuery(&q); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if a.trends == nil {
		respondError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	trends, err := a.trends.ListTrends(r.Context(), storage.TrendFilter{
		Period:   models.Period(q.Period),
		Category: categoryFilter(q.Category),
		Sort:     storage.TrendSort(q.Sort),
		Limit:    q.Limit,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list trends")
		respondError(w, http.StatusInternalServerError, "failed to list trends")
		return
	}
	respondList(w, trends)
}

func (a *TrendAgent) handleGaps(w http.ResponseWriter, r *http.Request) {
	q := gapsQuery{Limit: defaultListLimit}
	values := r.URL.Query()
	q.Category = values.Get("category")
	if err := parseInt(values.Get("limit"), &q.Limit); err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if v := values.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid min_score")
			return
		}
		q.MinScore = score
	}
	if err := validateQuery(&q); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if a.gaps == nil {
		respondError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	gaps, err := a.gaps.ListGaps(r.Context(), storage.GapFilter{
		Category: categoryFilter(q.Category),
		MinScore: q.MinScore,
		Limit:    q.Limit,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list gaps")
		respondError(w, http.StatusInternalServerError, "failed to list gaps")
		return
	}
	respondList(w, gaps)
}

func parseInt(raw string, dst *int) error {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// validateQuery reports the first invalid parameter by its query name.
func validateQuery(q any) error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return fmt.Errorf("invalid %s %v", errs[0].Field(), errs[0].Value())
	}
	return err
}

// categoryFilter maps an empty parameter to "any category".
func categoryFilter(raw string) *models.Category {
	if raw == "" {
		return nil
	}
	c, _ := models.ParseCategory(raw)
	return &c
}

func respondList[T any](w http.ResponseWriter, items []T) {
	resp := listResponse[T]{Status: statusOK, Items: items}
	if len(items) == 0 {
		resp = listResponse[T]{Status: statusNoData, Items: []T{}}
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Status: statusError, Error: message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}
