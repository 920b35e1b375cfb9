package binding

import (
	"sort"
	"sync"

	"codeberg.org/mutker/whistlectl/internal/events"
)

// Source is the read-only view of the registry used by the refresh engine
type Source interface {
	Get(name string) (Record, bool)
	Snapshot() []Record
	Len() int
}

// Registry holds resolved bindings keyed by binding name
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
	bus     events.Bus
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(bus events.Bus) *Registry {
	return &Registry{
		records: make(map[string]Record),
		bus:     bus,
	}
}

// Put adds or replaces a record and announces the change
func (r *Registry) Put(rec Record) {
	r.mu.Lock()
	r.records[rec.Name] = rec
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(events.BindingChanged, rec.Name)
	}
}

// Remove drops a record, reporting whether it existed
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	_, ok := r.records[name]
	delete(r.records, name)
	r.mu.Unlock()

	if ok && r.bus != nil {
		r.bus.Publish(events.BindingRemoved, name)
	}
	return ok
}

func (r *Registry) Get(name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	return rec, ok
}

// Names returns the registered binding names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Snapshot returns a copy of all records sorted by name
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })

	return recs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}
