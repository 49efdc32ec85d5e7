package models

import (
	"fmt"
	"time"
)

type Stage string

const (
	StageCollect   Stage = "collect"
	StageAggregate Stage = "aggregate"
	StageScore     Stage = "score"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageCollect, StageAggregate, StageScore}

func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// StageSummary is what every stage invocation reports.
type StageSummary struct {
	Stage     Stage         `json:"stage"`
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Errors    int           `json:"errors"`
	NoData    bool          `json:"no_data"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// GetSummary implements scheduler.Metrics.
func (s StageSummary) GetSummary() string {
	if s.NoData {
		return fmt.Sprintf("%s: no data yet (processed %d, errors %d)", s.Stage, s.Processed, s.Errors)
	}
	return fmt.Sprintf("%s: processed %d, created %d, updated %d, errors %d",
		s.Stage, s.Processed, s.Created, s.Updated, s.Errors)
}
