package extractor

import (
	"context"
	"strconv"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/state"
)

const secondsPerDay = 86400

const (
	activityMinutes = 0
	activityGoal    = 1
)

// activity reads the dailies record of a single day. The parameter is the
// number of days before today (0 is today). The same record serves both the
// activity command (minutes active) and the target command (activity goal).
type activity struct {
	api   API
	now   Clock
	index int
	log   logger.Logger
}

// DailyActivity returns (minutes_active, activity_goal) for the day that lies
// days before today. found is false when the API has no record for that day.
func DailyActivity(ctx context.Context, api API, now Clock, token, dogID string, days int) (pair [2]int64, found bool, err error) {
	daysSinceEpoch := now().Unix()/secondsPerDay - int64(days)

	stats, err := api.Dailies(ctx, token, dogID, days+1)
	if err != nil {
		return pair, false, err
	}

	for _, stat := range stats {
		day, err := required(stat.DayNumber, "day_number")
		if err != nil {
			return pair, false, err
		}
		if day != daysSinceEpoch {
			continue
		}

		active, err := required(stat.MinutesActive, "minutes_active")
		if err != nil {
			return pair, false, err
		}
		goal, err := required(stat.ActivityGoal, "activity_goal")
		if err != nil {
			return pair, false, err
		}

		return [2]int64{active, goal}, true, nil
	}

	return pair, false, nil
}

func (a *activity) Extract(ctx context.Context, req Request) (state.Value, bool, error) {
	days, err := parseDays(req.Parameter, 0)
	if err != nil {
		return state.Value{}, false, err
	}

	pair, found, err := DailyActivity(ctx, a.api, a.now, req.Token, req.DogID, days)
	if err != nil || !found {
		return state.Value{}, false, err
	}

	a.log.Debug().
		Str("dog_id", req.DogID).
		Int("days", days).
		Int64("active", pair[activityMinutes]).
		Int64("goal", pair[activityGoal]).
		Msg("Daily activity")

	return state.NumberValue(float64(pair[a.index])), true, nil
}

func parseDays(parameter string, minimum int) (int, error) {
	days, err := strconv.Atoi(parameter)
	if err != nil || days < minimum {
		return 0, errors.New().WithData(ErrInvalidParameter, parameter)
	}
	return days, nil
}

func required[T any](field *T, name string) (T, error) {
	if field == nil {
		var zero T
		return zero, errors.New().WithData(ErrParseFailure, "missing field "+name)
	}
	return *field, nil
}
