package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/whistlectl/internal/errors"
)

// MemoryStore keeps the latest value of every item in memory
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Item),
		now:   time.Now,
	}
}

func (s *MemoryStore) Publish(_ context.Context, name string, value Value) error {
	if name == "" {
		return errors.New().New(ErrInvalidItem)
	}

	s.mu.Lock()
	s.items[name] = Item{Name: name, Value: value, UpdatedAt: s.now()}
	s.mu.Unlock()

	return nil
}

// Seed loads previously stored items without changing their timestamps
func (s *MemoryStore) Seed(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		s.items[item.Name] = item
	}
}

// Forget drops an item, used when its binding is removed
func (s *MemoryStore) Forget(name string) {
	s.mu.Lock()
	delete(s.items, name)
	s.mu.Unlock()
}

func (s *MemoryStore) Get(name string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[name]
	return item, ok
}

func (s *MemoryStore) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	return items
}

func (*MemoryStore) Close() error {
	return nil
}
