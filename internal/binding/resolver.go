package binding

import (
	"context"
	"sync"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
)

// TokenSource supplies an auth token, waiting for credentials if needed
type TokenSource interface {
	EnsureToken(ctx context.Context) (string, error)
}

// Resolver turns binding definitions into registered records. Bindings come
// from two places: the definitions file, reconciled as a whole by Apply, and
// single registrations through Register. Apply only removes bindings that a
// definitions file introduced.
type Resolver struct {
	tokens   TokenSource
	devices  *DeviceResolver
	registry *Registry
	log      logger.Logger

	// apply serializes reconciliation runs
	apply sync.Mutex

	mu          sync.Mutex
	fileNames   map[string]struct{}
	cancelApply context.CancelFunc
}

func NewResolver(tokens TokenSource, devices *DeviceResolver, registry *Registry) *Resolver {
	return &Resolver{
		tokens:   tokens,
		devices:  devices,
		registry:  registry,
		log:       logger.New("binding"),
		fileNames: make(map[string]struct{}),
	}
}

// Resolve parses raw and looks up the device of its dog. It blocks until
// credentials are available.
func (r *Resolver) Resolve(ctx context.Context, name, raw string) (Record, error) {
	dogID, command, parameter, err := Parse(raw)
	if err != nil {
		return Record{}, err
	}

	token, err := r.tokens.EnsureToken(ctx)
	if err != nil {
		return Record{}, err
	}

	deviceID, err := r.devices.ResolveDeviceID(ctx, dogID, token)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Name:      name,
		DogID:     dogID,
		DeviceID:  deviceID,
		Command:   command,
		Parameter: parameter,
		Raw:       raw,
	}, nil
}

// Register resolves a definition and adds it to the registry, replacing a
// record of the same name. A binding registered here is left alone by later
// Apply runs unless the definitions file defines the same name. On failure an
// existing record of that name is kept.
func (r *Resolver) Register(ctx context.Context, name, raw string) (Record, error) {
	rec, err := r.register(ctx, name, raw)
	if err != nil {
		return Record{}, err
	}

	r.mu.Lock()
	delete(r.fileNames, name)
	r.mu.Unlock()

	return rec, nil
}

// register resolves and stores a record. Bindings that cannot be resolved are
// logged and left out.
func (r *Resolver) register(ctx context.Context, name, raw string) (Record, error) {
	rec, err := r.Resolve(ctx, name, raw)
	if err != nil {
		event := r.log.Error().Err(err).Str("binding", name).Str("config", raw)
		if errors.HasCode(err, ErrDeviceNotFound) {
			event.Msg("Dog not found, binding not added")
		} else {
			event.Msg("Failed to add binding")
		}
		return Record{}, err
	}

	r.log.Debug().
		Str("binding", name).
		Str("dog_id", rec.DogID).
		Str("device_id", rec.DeviceID).
		Str("command", string(rec.Command)).
		Str("parameter", rec.Parameter).
		Msg("Binding configured")

	r.registry.Put(rec)

	return rec, nil
}

// Unregister removes a binding by name
func (r *Resolver) Unregister(name string) bool {
	r.mu.Lock()
	delete(r.fileNames, name)
	r.mu.Unlock()

	return r.registry.Remove(name)
}

// Apply reconciles the registry with a complete set of file definitions: new
// and changed definitions are registered, file bindings no longer defined are
// removed and unchanged ones are left alone. It returns the number of
// definitions that failed to resolve.
//
// Runs are serialized. A new run cancels the one in progress, which stops
// without touching the registry further; the newer run then reconciles from
// the current registry state.
func (r *Resolver) Apply(ctx context.Context, defs map[string]string) int {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.cancelApply != nil {
		r.cancelApply()
	}
	r.cancelApply = cancel
	r.mu.Unlock()

	r.apply.Lock()
	defer r.apply.Unlock()

	if runCtx.Err() != nil {
		return 0
	}

	for _, name := range r.managedNames() {
		if _, ok := defs[name]; !ok {
			r.log.Debug().Str("binding", name).Msg("Binding removed from definitions")
			r.registry.Remove(name)
			r.forget(name)
		}
	}

	failed := 0
	for _, name := range sortedKeys(defs) {
		raw := defs[name]

		r.mu.Lock()
		_, managed := r.fileNames[name]
		r.fileNames[name] = struct{}{}
		r.mu.Unlock()

		if rec, ok := r.registry.Get(name); ok && managed && rec.Raw == raw {
			continue
		}

		_, err := r.register(runCtx, name, raw)
		if runCtx.Err() != nil {
			r.log.Debug().Msg("Binding reconciliation superseded")
			return failed
		}
		if err != nil {
			// Stale record must not outlive a changed definition
			r.registry.Remove(name)
			failed++
		}
	}

	return failed
}

func (r *Resolver) managedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.fileNames))
	for name := range r.fileNames {
		names = append(names, name)
	}
	return names
}

func (r *Resolver) forget(name string) {
	r.mu.Lock()
	delete(r.fileNames, name)
	r.mu.Unlock()
}
