// Package events carries binding lifecycle notifications between the host
// side (registry, API, config reload) and the refresh engine.
package events

import evbus "github.com/asaskevich/EventBus"

// Topics
const (
	// BindingChanged is published with the binding name after a binding was
	// added or its definition changed.
	BindingChanged = "binding:changed"
	// BindingRemoved is published with the binding name after removal.
	BindingRemoved = "binding:removed"
)

// Bus is the subset of the event bus used by this module
type Bus interface {
	Publish(topic string, args ...interface{})
	Subscribe(topic string, fn interface{}) error
	SubscribeAsync(topic string, fn interface{}, transactional bool) error
	Unsubscribe(topic string, handler interface{}) error
	WaitAsync()
}

// New creates a new event bus
func New() Bus {
	return evbus.New()
}
