package whistle

import (
	"bytes"
	"strconv"
)

// FlexString decodes a JSON string or number into its textual form.
// The API is inconsistent about quoting ids and battery levels.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Dog is one element of dogs.json
type Dog struct {
	ID       FlexString `json:"id"`
	Name     FlexString `json:"name"`
	DeviceID FlexString `json:"device_id"`
}

// DailyStat is one element of the dailies or daily_totals arrays.
// Fields are pointers so that a missing field can be told apart from zero.
type DailyStat struct {
	DayNumber     *int64 `json:"day_number"`
	MinutesActive *int64 `json:"minutes_active"`
	MinutesRest   *int64 `json:"minutes_rest"`
	ActivityGoal  *int64 `json:"activity_goal"`
}

type GoalStats struct {
	CurrentStreak *int `json:"current_streak"`
	LongestStreak *int `json:"longest_streak"`
}

type DeviceInfo struct {
	BatteryLevel *FlexString `json:"battery_level"`
	LastCheckIn  *FlexString `json:"last_check_in"`
}

type tokenRequest struct {
	Password string `json:"password"`
	Email    string `json:"email"`
	AppID    string `json:"app_id"`
}

type tokenResponse struct {
	Token *FlexString `json:"token"`
}
