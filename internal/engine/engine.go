// Package engine runs the periodic refresh of all bindings and the on-demand
// refresh of single bindings.
package engine

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/whistlectl/internal/binding"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/events"
	"codeberg.org/mutker/whistlectl/internal/extractor"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/state"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval    = 900 * time.Second
	DefaultConcurrency = 1
)

// TokenSource returns the cached auth token or exchanges credentials for one.
// It must not wait for credentials.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Dispatcher selects the extractor for a binding
type Dispatcher interface {
	Lookup(command binding.Command, parameter string) (extractor.Extractor, error)
}

type Engine struct {
	source     binding.Source
	tokens     TokenSource
	dispatcher Dispatcher
	publisher  state.Publisher
	bus        events.Bus
	log        logger.Logger

	concurrency int

	mu       sync.RWMutex
	interval time.Duration
	reset    chan struct{}

	cycle sync.Mutex
}

type Option func(*Engine)

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithConcurrency bounds the number of bindings refreshed at the same time
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithBus makes Run refresh bindings as soon as they change
func WithBus(bus events.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

func New(source binding.Source, tokens TokenSource, dispatcher Dispatcher, publisher state.Publisher, opts ...Option) (*Engine, error) {
	e := &Engine{
		source:      source,
		tokens:      tokens,
		dispatcher:  dispatcher,
		publisher:   publisher,
		log:         logger.New("engine"),
		concurrency: DefaultConcurrency,
		interval:    DefaultInterval,
		reset:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	errFactory := errors.New()
	if e.interval <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidInterval, e.interval.String())
	}
	if e.concurrency < 1 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "concurrency must be at least 1")
	}

	return e, nil
}

// Interval returns the current refresh interval
func (e *Engine) Interval() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.interval
}

// SetInterval changes the refresh interval; a running loop picks it up
// immediately.
func (e *Engine) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, d.String())
	}

	e.mu.Lock()
	changed := e.interval != d
	e.interval = d
	e.mu.Unlock()

	if changed {
		e.log.Info().Dur("interval", d).Msg("Refresh interval changed")
		select {
		case e.reset <- struct{}{}:
		default:
		}
	}

	return nil
}

// Run refreshes all bindings immediately and then on every tick until ctx is
// done.
func (e *Engine) Run(ctx context.Context) error {
	if e.bus != nil {
		onChanged := func(name string) {
			if _, err := e.RefreshBinding(ctx, name); err != nil {
				e.log.Debug().Err(err).Str("binding", name).Msg("Binding gone before refresh")
			}
		}
		if err := e.bus.SubscribeAsync(events.BindingChanged, onChanged, false); err != nil {
			return errors.New().Wrap(errors.ErrInitFailed, err)
		}
		defer func() {
			_ = e.bus.Unsubscribe(events.BindingChanged, onChanged)
			e.bus.WaitAsync()
		}()
	}

	e.RefreshAll(ctx)

	ticker := time.NewTicker(e.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Debug().Msg("Refresh loop stopped")
			return nil
		case <-e.reset:
			ticker.Reset(e.Interval())
		case <-ticker.C:
			e.RefreshAll(ctx)
		}
	}
}

// RefreshAll runs one refresh cycle over every registered binding. Failures
// of single bindings are logged and never stop the cycle; a failed token
// request fails every dispatchable binding of the cycle. A cycle started while
// another one is running is dropped.
func (e *Engine) RefreshAll(ctx context.Context) Summary {
	summary := Summary{ID: uuid.NewString()}

	if !e.cycle.TryLock() {
		e.log.Warn().Str("cycle", summary.ID).Msg("Refresh cycle already running, skipping")
		summary.Dropped = true
		return summary
	}
	defer e.cycle.Unlock()

	records := e.source.Snapshot()
	if len(records) == 0 {
		e.log.Warn().Str("cycle", summary.ID).Msg("No whistle bindings configured, nothing to refresh")
		return summary
	}

	start := time.Now()
	results := make([]Result, len(records))

	// Dispatch first so unknown bindings never cause a token exchange
	jobs := make([]extractor.Extractor, len(records))
	dispatchable := 0
	for i, rec := range records {
		ex, res, ok := e.dispatch(rec)
		if !ok {
			results[i] = res
			continue
		}
		jobs[i] = ex
		dispatchable++
	}

	// One token per cycle: a rejected exchange fails the whole cycle and is
	// retried on the next one.
	var token string
	if dispatchable > 0 {
		var err error
		token, err = e.tokens.Token(ctx)
		if err != nil {
			e.log.Error().Err(err).Str("cycle", summary.ID).Msg("Failed to get auth token, cycle aborted")
			for i, rec := range records {
				if jobs[i] != nil {
					results[i] = Result{Binding: rec.Name}.fail(err)
				}
			}
			jobs = make([]extractor.Extractor, len(records))
		}
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, rec := range records {
		if jobs[i] == nil {
			continue
		}
		if ctx.Err() != nil {
			results[i] = Result{Binding: rec.Name}.fail(ctx.Err())
			continue
		}
		g.Go(func() error {
			results[i] = e.extract(ctx, rec, jobs[i], token)
			return nil
		})
	}
	_ = g.Wait()

	summary.Results = results
	summary.Duration = time.Since(start)

	counts := summary.Counts()
	e.log.Info().
		Str("cycle", summary.ID).
		Int("bindings", len(records)).
		Int(string(OutcomePublished), counts[OutcomePublished]).
		Int(string(OutcomeNoData), counts[OutcomeNoData]).
		Int(string(OutcomeSkipped), counts[OutcomeSkipped]).
		Int(string(OutcomeFailed), counts[OutcomeFailed]).
		Dur("duration", summary.Duration).
		Msg("Refresh cycle finished")

	return summary
}

// RefreshBinding refreshes a single binding by name. It publishes only when
// the extractor returned a value.
func (e *Engine) RefreshBinding(ctx context.Context, name string) (Result, error) {
	rec, ok := e.source.Get(name)
	if !ok {
		return Result{Binding: name}, errors.New().WithData(binding.ErrNotRegistered, name)
	}

	ex, res, ok := e.dispatch(rec)
	if !ok {
		return res, nil
	}

	token, err := e.tokens.Token(ctx)
	if err != nil {
		e.log.Error().Err(err).Str("binding", rec.Name).Msg("Failed to get auth token")
		return res.fail(err), nil
	}

	return e.extract(ctx, rec, ex, token), nil
}

// dispatch finds the extractor of a binding. ok is false when the binding is
// skipped; res then carries the outcome.
func (e *Engine) dispatch(rec binding.Record) (ex extractor.Extractor, res Result, ok bool) {
	res = Result{Binding: rec.Name}

	ex, err := e.dispatcher.Lookup(rec.Command, rec.Parameter)
	if err != nil {
		event := e.log.Warn()
		if errors.HasCode(err, extractor.ErrUnknownCommand) {
			event = e.log.Debug()
		}
		event.Err(err).Str("binding", rec.Name).Str("config", rec.Raw).Msg("Binding not dispatched")

		res.Outcome = OutcomeSkipped
		res.Err = err
		return nil, res, false
	}

	return ex, res, true
}

func (e *Engine) extract(ctx context.Context, rec binding.Record, ex extractor.Extractor, token string) Result {
	res := Result{Binding: rec.Name}

	value, ok, err := ex.Extract(ctx, extractor.Request{
		DogID:     rec.DogID,
		DeviceID:  rec.DeviceID,
		Parameter: rec.Parameter,
		Token:     token,
	})
	if err != nil {
		e.log.Error().Err(err).Str("binding", rec.Name).Str("config", rec.Raw).Msg("Failed to refresh binding")
		return res.fail(err)
	}
	if !ok {
		e.log.Debug().Str("binding", rec.Name).Str("config", rec.Raw).Msg("No data for binding")
		res.Outcome = OutcomeNoData
		return res
	}

	if err := e.publisher.Publish(ctx, rec.Name, value); err != nil {
		e.log.Error().Err(err).Str("binding", rec.Name).Msg("Failed to publish state")
		return res.fail(err)
	}

	e.log.Debug().Str("binding", rec.Name).Str("value", value.String()).Msg("State published")

	res.Outcome = OutcomePublished
	res.Value = value
	return res
}
