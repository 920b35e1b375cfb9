package engine

import (
	"time"

	"codeberg.org/mutker/whistlectl/internal/state"
)

// Outcome of refreshing one binding
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeNoData    Outcome = "no_data"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

type Result struct {
	Binding string
	Outcome Outcome
	Value   state.Value
	Err     error
}

func (r Result) fail(err error) Result {
	r.Outcome = OutcomeFailed
	r.Err = err
	return r
}

// Summary describes one refresh cycle
type Summary struct {
	ID       string
	Results  []Result
	Duration time.Duration
	// Dropped is set when another cycle was still running
	Dropped bool
}

// Counts tallies the results per outcome
func (s Summary) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 4)
	for _, r := range s.Results {
		counts[r.Outcome]++
	}
	return counts
}
