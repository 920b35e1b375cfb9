package extractor

import (
	"context"
	"fmt"
	"strconv"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/state"
)

type battery struct {
	api API
	log logger.Logger
}

// Extract returns the battery level rounded to two decimals, as a string
func (b *battery) Extract(ctx context.Context, req Request) (state.Value, bool, error) {
	info, err := b.api.Device(ctx, req.Token, req.DeviceID)
	if err != nil {
		return state.Value{}, false, err
	}

	raw, err := required(info.BatteryLevel, "battery_level")
	if err != nil {
		return state.Value{}, false, err
	}
	level, err := strconv.ParseFloat(raw.String(), 64)
	if err != nil {
		return state.Value{}, false, errors.New().Wrap(ErrParseFailure, err)
	}

	formatted := fmt.Sprintf("%.2f", level)
	b.log.Debug().Str("device_id", req.DeviceID).Str("battery", formatted).Msg("Battery level")

	return state.StringValue(formatted), true, nil
}

type lastCheckIn struct {
	api API
	log logger.Logger
}

// Extract returns the last check-in timestamp exactly as the API sent it
func (l *lastCheckIn) Extract(ctx context.Context, req Request) (state.Value, bool, error) {
	info, err := l.api.Device(ctx, req.Token, req.DeviceID)
	if err != nil {
		return state.Value{}, false, err
	}

	raw, err := required(info.LastCheckIn, "last_check_in")
	if err != nil {
		return state.Value{}, false, err
	}

	l.log.Debug().Str("device_id", req.DeviceID).Str("last_check_in", raw.String()).Msg("Last check in")

	return state.StringValue(raw.String()), true, nil
}
