package extractor

import (
	"context"

	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/state"
)

const (
	averageActive = 0
	averageRest   = 1
)

// averages computes mean active and rest minutes over the last days days.
type averages struct {
	api   API
	now   Clock
	index int
	log   logger.Logger
}

// DailyAverages returns the (active, rest) averages over the window that
// starts days before today. Today's entry, the last element, is partial and
// left out of the sums, yet the sums are still divided by days.
func DailyAverages(ctx context.Context, api API, now Clock, token, dogID string, days int) ([2]int64, error) {
	var sums [2]int64

	fromDate := now().AddDate(0, 0, -days).Format("2006-01-02")

	totals, err := api.DailyTotals(ctx, token, dogID, fromDate)
	if err != nil {
		return sums, err
	}

	for i := 0; i < len(totals)-1; i++ {
		active, err := required(totals[i].MinutesActive, "minutes_active")
		if err != nil {
			return sums, err
		}
		rest, err := required(totals[i].MinutesRest, "minutes_rest")
		if err != nil {
			return sums, err
		}
		sums[averageActive] += active
		sums[averageRest] += rest
	}

	return [2]int64{sums[averageActive] / int64(days), sums[averageRest] / int64(days)}, nil
}

func (a *averages) Extract(ctx context.Context, req Request) (state.Value, bool, error) {
	days, err := parseDays(req.Parameter, 1)
	if err != nil {
		return state.Value{}, false, err
	}

	avg, err := DailyAverages(ctx, a.api, a.now, req.Token, req.DogID, days)
	if err != nil {
		return state.Value{}, false, err
	}

	a.log.Debug().
		Str("dog_id", req.DogID).
		Int("days", days).
		Int64("active", avg[averageActive]).
		Int64("rest", avg[averageRest]).
		Msg("Daily averages")

	return state.NumberValue(float64(avg[a.index])), true, nil
}
