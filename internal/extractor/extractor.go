// Package extractor turns Whistle API payloads into binding values.
//
// Each extractor serves one (command, parameter class) pair. The registry
// selects the extractor for a binding; extractors never publish anything
// themselves.
package extractor

import (
	"context"
	"time"

	"codeberg.org/mutker/whistlectl/internal/state"
	"codeberg.org/mutker/whistlectl/internal/whistle"
)

// Request carries everything an extractor needs for one binding
type Request struct {
	DogID     string
	DeviceID  string
	Parameter string
	Token     string
}

// Extractor fetches and interprets one metric. ok is false when the API had
// no data for the request; that is not an error.
type Extractor interface {
	Extract(ctx context.Context, req Request) (value state.Value, ok bool, err error)
}

// Func adapts a function to the Extractor interface
type Func func(ctx context.Context, req Request) (state.Value, bool, error)

func (f Func) Extract(ctx context.Context, req Request) (state.Value, bool, error) {
	return f(ctx, req)
}

// API is the part of the Whistle client the extractors use
type API interface {
	Dailies(ctx context.Context, token, dogID string, count int) ([]whistle.DailyStat, error)
	DailyTotals(ctx context.Context, token, dogID, startDate string) ([]whistle.DailyStat, error)
	Goals(ctx context.Context, token, dogID string) (whistle.GoalStats, error)
	Device(ctx context.Context, token, deviceID string) (whistle.DeviceInfo, error)
}

// Clock returns the current time
type Clock func() time.Time
