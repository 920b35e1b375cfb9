package extractor

import (
	"strconv"
	"time"

	"codeberg.org/mutker/whistlectl/internal/binding"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/whistle"
)

// ParamDays is the parameter class matching any day count
const ParamDays = "<days>"

// Key selects an extractor
type Key struct {
	Command   binding.Command
	Parameter string
}

// Registry maps (command, parameter class) pairs to extractors
type Registry struct {
	entries  map[Key]Extractor
	commands map[binding.Command]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[Key]Extractor),
		commands: make(map[binding.Command]struct{}),
	}
}

// Register adds an extractor for a command and parameter. Use ParamDays to
// match every non-negative integer parameter.
func (r *Registry) Register(command binding.Command, parameter string, ex Extractor) {
	r.entries[Key{Command: command, Parameter: parameter}] = ex
	r.commands[command] = struct{}{}
}

// Lookup finds the extractor for a binding. The exact parameter wins over the
// day-count class.
func (r *Registry) Lookup(command binding.Command, parameter string) (Extractor, error) {
	errFactory := errors.New()

	if _, ok := r.commands[command]; !ok {
		return nil, errFactory.WithData(ErrUnknownCommand, string(command))
	}

	if ex, ok := r.entries[Key{Command: command, Parameter: parameter}]; ok {
		return ex, nil
	}

	if days, err := strconv.Atoi(parameter); err == nil && days >= 0 {
		if ex, ok := r.entries[Key{Command: command, Parameter: ParamDays}]; ok {
			return ex, nil
		}
	}

	return nil, errFactory.WithData(ErrUnknownParameter, Key{Command: command, Parameter: parameter})
}

// Keys lists the registered keys
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

type options struct {
	now         Clock
	lastCheckIn bool
}

type Option func(*options)

// WithClock overrides the time source used for day windows
func WithClock(now Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLastCheckIn exposes device:lastcheckin, which is not dispatched by default
func WithLastCheckIn() Option {
	return func(o *options) {
		o.lastCheckIn = true
	}
}

// Default builds the registry with every supported binding command
func Default(api API, opts ...Option) *Registry {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	log := logger.New("extractor")
	r := NewRegistry()

	r.Register(binding.CommandActivity, ParamDays, &activity{api: api, now: o.now, index: activityMinutes, log: log})
	r.Register(binding.CommandTarget, ParamDays, &activity{api: api, now: o.now, index: activityGoal, log: log})
	r.Register(binding.CommandAverageActive, ParamDays, &averages{api: api, now: o.now, index: averageActive, log: log})
	r.Register(binding.CommandAverageRest, ParamDays, &averages{api: api, now: o.now, index: averageRest, log: log})
	r.Register(binding.CommandDevice, "battery", &battery{api: api, log: log})
	r.Register(binding.CommandGoals, "current", &goals{
		api:   api,
		field: "current_streak",
		pick:  func(s whistle.GoalStats) *int { return s.CurrentStreak },
		log:   log,
	})
	r.Register(binding.CommandGoals, "longest", &goals{
		api:   api,
		field: "longest_streak",
		pick:  func(s whistle.GoalStats) *int { return s.LongestStreak },
		log:   log,
	})

	if o.lastCheckIn {
		r.Register(binding.CommandDevice, "lastcheckin", &lastCheckIn{api: api, log: log})
	}

	return r
}
