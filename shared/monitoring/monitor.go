package monitoring

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"trend-stack/internal/models"
	"trend-stack/shared/logging"
)

type stageStatus struct {
	success bool
	at      time.Time
	summary string
}

// Monitor remembers the outcome of the last run of every stage.
type Monitor struct {
	mu     sync.RWMutex
	stages map[models.Stage]*stageStatus
}

func NewMonitor() *Monitor {
	return &Monitor{stages: make(map[models.Stage]*stageStatus)}
}

func (m *Monitor) RecordSuccess(stage models.Stage, summary string, duration time.Duration) {
	m.set(stage, &stageStatus{success: true, at: time.Now(), summary: summary})

	logging.Info().
		Str("stage", string(stage)).
		Dur("duration", duration).
		Msgf("✅ Run completed successfully - %s", summary)
}

func (m *Monitor) RecordPartialFailure(stage models.Stage, err error, duration time.Duration) {
	// Don't change health status for partial failures
	logging.Warn().
		Str("stage", string(stage)).
		Dur("duration", duration).
		Err(err).
		Msg("⚠️  PARTIAL FAILURE")
}

func (m *Monitor) RecordCriticalFailure(stage models.Stage, err error, duration time.Duration) {
	m.set(stage, &stageStatus{success: false, at: time.Now(), summary: err.Error()})

	logging.Error().
		Str("stage", string(stage)).
		Dur("duration", duration).
		Err(err).
		Msg("🚨 CRITICAL FAILURE")
}

func (m *Monitor) set(stage models.Stage, status *stageStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage] = status
}

// IsHealthy is true until some stage's most recent run failed critically.
func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, st := range m.stages {
		if !st.success {
			return false
		}
	}
	return true
}

func (m *Monitor) GetStatusSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.stages) == 0 {
		return "No runs yet"
	}

	var lines []string
	for _, stage := range models.Stages {
		st, ok := m.stages[stage]
		if !ok {
			continue
		}
		if st.success {
			lines = append(lines, fmt.Sprintf("✅ %s last run: %s - %s", stage, st.at.Format("Jan 2 15:04"), st.summary))
		} else {
			lines = append(lines, fmt.Sprintf("❌ %s last run failed: %s - %s", stage, st.at.Format("Jan 2 15:04"), st.summary))
		}
	}
	return strings.Join(lines, "\n")
}
