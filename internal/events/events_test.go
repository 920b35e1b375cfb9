package events_test

import (
	"sync"
	"testing"

	"codeberg.org/mutker/whistlectl/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncDelivery(t *testing.T) {
	bus := events.New()

	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.SubscribeAsync(events.BindingChanged, func(name string) {
		mu.Lock()
		got = append(got, name)
		mu.Unlock()
	}, false))

	bus.Publish(events.BindingChanged, "Dog_Battery")
	bus.Publish(events.BindingRemoved, "Dog_Activity")
	bus.WaitAsync()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Dog_Battery"}, got)
}
