package binding

import (
	"strings"

	"codeberg.org/mutker/whistlectl/internal/errors"
)

// Command selects the metric a binding publishes
type Command string

const (
	CommandActivity      Command = "activity"
	CommandTarget        Command = "target"
	CommandDevice        Command = "device"
	CommandGoals         Command = "goals"
	CommandAverageActive Command = "averageactive"
	CommandAverageRest   Command = "averagerest"
)

// Record is a resolved binding. It is never modified after creation; a
// changed definition replaces the record.
type Record struct {
	Name      string  `json:"name"`
	DogID     string  `json:"dog_id"`
	DeviceID  string  `json:"device_id"`
	Command   Command `json:"command"`
	Parameter string  `json:"parameter"`
	Raw       string  `json:"config"`
}

// Parse splits "<dogID>:<command>:<parameter>". The command is not checked
// against the known set; unknown commands are handled at dispatch time.
func Parse(raw string) (dogID string, command Command, parameter string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return "", "", "", errors.New().WithMessage(ErrInvalidConfig,
			"whistle binding configuration must contain three parts: "+raw)
	}
	for _, part := range parts {
		if part == "" {
			return "", "", "", errors.New().WithMessage(ErrInvalidConfig,
				"whistle binding configuration has an empty part: "+raw)
		}
	}

	return parts[0], Command(parts[1]), parts[2], nil
}
