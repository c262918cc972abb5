package domain

import (
	"time"
)

// PipelineState is a stage of a preprocessing run.
type PipelineState string

const (
	StateIdle      PipelineState = "idle"
	StateReading   PipelineState = "reading"
	StateResolving PipelineState = "resolving"
	StateWriting   PipelineState = "writing"
	StateDone      PipelineState = "done"
	StateFailed    PipelineState = "failed"
)

// Terminal reports whether no further transitions happen from this state.
func (s PipelineState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the pipeline may move from s to next.
func (s PipelineState) CanTransition(next PipelineState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	switch s {
	case StateIdle:
		return next == StateReading
	case StateReading:
		return next == StateResolving
	case StateResolving:
		return next == StateWriting
	case StateWriting:
		return next == StateDone
	}
	return false
}

// RunSummary is reported at the end of a job's run.
type RunSummary struct {
	RunID     string
	Job       string
	State     PipelineState
	StartedAt time.Time
	EndedAt   time.Time

	// Declared is the number of queries read, before deduplication.
	Declared int
	// Unique is the number of distinct identities.
	Unique int

	Succeeded int
	Failed    int
	Cancelled int
	// Reused counts successes taken from the previous result store.
	Reused int
	// Evicted counts stale entries removed from the store.
	Evicted int

	// Failures lists failed and cancelled resolutions in canonical order.
	Failures []Resolution

	// Err is the abort reason when State is StateFailed.
	Err error
}

// OK reports whether the run completed and every query resolved.
func (s *RunSummary) OK() bool {
	return s.State == StateDone && s.Failed == 0 && s.Cancelled == 0
}

// Duration returns how long the run took.
func (s *RunSummary) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Tally fills the outcome counters from a result set restricted to ids.
func (s *RunSummary) Tally(results *ResultSet, ids []string) {
	s.Succeeded, s.Failed, s.Cancelled = 0, 0, 0
	s.Failures = nil
	for _, id := range ids {
		r, ok := results.Get(id)
		if !ok {
			continue
		}
		switch r.Status {
		case StatusOK:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
			s.Failures = append(s.Failures, r)
		case StatusCancelled:
			s.Cancelled++
			s.Failures = append(s.Failures, r)
		}
	}
}
