package extractor

import (
	"context"

	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/state"
	"codeberg.org/mutker/whistlectl/internal/whistle"
)

type goals struct {
	api   API
	field string
	pick  func(whistle.GoalStats) *int
	log   logger.Logger
}

// Extract reads a single streak field; the other one is never inspected
func (g *goals) Extract(ctx context.Context, req Request) (state.Value, bool, error) {
	stats, err := g.api.Goals(ctx, req.Token, req.DogID)
	if err != nil {
		return state.Value{}, false, err
	}

	streak, err := required(g.pick(stats), g.field)
	if err != nil {
		return state.Value{}, false, err
	}

	g.log.Debug().Str("dog_id", req.DogID).Int(g.field, streak).Msg("Goal streak")

	return state.NumberValue(float64(streak)), true, nil
}
