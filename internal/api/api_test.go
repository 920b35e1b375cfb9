package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/whistlectl/internal/api"
	"codeberg.org/mutker/whistlectl/internal/binding"
	"codeberg.org/mutker/whistlectl/internal/engine"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/extractor"
	"codeberg.org/mutker/whistlectl/internal/state"
	"codeberg.org/mutker/whistlectl/internal/whistle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens struct{}

func (tokens) EnsureToken(context.Context) (string, error) { return "tok", nil }

func (tokens) Token(context.Context) (string, error) { return "tok", nil }

type dogs struct {
	err error
}

func (d dogs) Dogs(context.Context, string) ([]whistle.Dog, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []whistle.Dog{{ID: "42", Name: "Rex", DeviceID: "dev-42"}}, nil
}

type fixture struct {
	handler  http.Handler
	registry *binding.Registry
	store    *state.MemoryStore
	calls    *atomic.Int32
}

func newFixture(t *testing.T, lister binding.DogLister) *fixture {
	t.Helper()

	registry := binding.NewRegistry(nil)
	resolver := binding.NewResolver(tokens{}, binding.NewDeviceResolver(lister), registry)
	store := state.NewMemoryStore()

	calls := &atomic.Int32{}
	dispatch := extractor.NewRegistry()
	dispatch.Register(binding.CommandGoals, "current", extractor.Func(
		func(_ context.Context, req extractor.Request) (state.Value, bool, error) {
			calls.Add(1)
			if req.DeviceID != "dev-42" {
				return state.Value{}, false, errors.New().New(errors.ErrInternal)
			}
			return state.NumberValue(5), true, nil
		}))

	eng, err := engine.New(registry, tokens{}, dispatch, store)
	require.NoError(t, err)

	srv, err := api.New(t.Context(), api.Options{
		Items:     store,
		Bindings:  registry,
		Resolver:  resolver,
		Refresher: eng,
	})
	require.NoError(t, err)

	return &fixture{handler: srv.Handler(), registry: registry, store: store, calls: calls}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := api.New(context.Background(), api.Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, dogs{})

	status, env := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestBindingLifecycle(t *testing.T) {
	f := newFixture(t, dogs{})

	status, env := f.do(t, http.MethodPut, "/api/bindings/rex_streak", `{"config":"42:goals:current"}`)
	require.Equal(t, http.StatusOK, status, env.Message)

	var rec binding.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "dev-42", rec.DeviceID)
	assert.Equal(t, binding.CommandGoals, rec.Command)

	status, env = f.do(t, http.MethodGet, "/api/bindings", "")
	require.Equal(t, http.StatusOK, status)
	var recs []binding.Record
	require.NoError(t, json.Unmarshal(env.Data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "rex_streak", recs[0].Name)

	status, env = f.do(t, http.MethodPost, "/api/bindings/rex_streak/refresh", "")
	require.Equal(t, http.StatusOK, status)
	var result struct {
		Binding string `json:"binding"`
		Outcome string `json:"outcome"`
		Value   string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "published", result.Outcome)
	assert.Equal(t, "5", result.Value)

	status, env = f.do(t, http.MethodGet, "/api/items/rex_streak", "")
	require.Equal(t, http.StatusOK, status)
	var item struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
		Kind  string  `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "rex_streak", item.Name)
	assert.Equal(t, float64(5), item.Value)
	assert.Equal(t, "number", item.Kind)

	status, _ = f.do(t, http.MethodDelete, "/api/bindings/rex_streak", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Zero(t, f.registry.Len())

	status, _ = f.do(t, http.MethodDelete, "/api/bindings/rex_streak", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPutBindingErrors(t *testing.T) {
	tests := []struct {
		name   string
		lister binding.DogLister
		body   string
		status int
	}{
		{"missing body", dogs{}, `{}`, http.StatusBadRequest},
		{"two parts", dogs{}, `{"config":"42:goals"}`, http.StatusBadRequest},
		{"unknown dog", dogs{}, `{"config":"7:goals:current"}`, http.StatusNotFound},
		{"remote failure", dogs{err: errors.New().New(whistle.ErrTransport)}, `{"config":"42:goals:current"}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.lister)

			status, env := f.do(t, http.MethodPut, "/api/bindings/b", tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			assert.Zero(t, f.registry.Len())
		})
	}
}

func TestGetItemNotFound(t *testing.T) {
	f := newFixture(t, dogs{})

	status, env := f.do(t, http.MethodGet, "/api/items/nothing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}

func TestListItems(t *testing.T) {
	f := newFixture(t, dogs{})
	require.NoError(t, f.store.Publish(context.Background(), "battery", state.StringValue("87.46")))

	status, env := f.do(t, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, status)

	var items []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		Kind  string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "87.46", items[0].Value)
	assert.Equal(t, "string", items[0].Kind)
}

func TestRefreshUnknownBinding(t *testing.T) {
	f := newFixture(t, dogs{})

	status, _ := f.do(t, http.MethodPost, "/api/bindings/ghost/refresh", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRefreshAllIsAsync(t *testing.T) {
	f := newFixture(t, dogs{})
	f.registry.Put(binding.Record{
		Name: "streak", DogID: "42", DeviceID: "dev-42",
		Command: binding.CommandGoals, Parameter: "current", Raw: "42:goals:current",
	})

	status, env := f.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusAccepted, status)
	assert.True(t, env.Success)

	require.Eventually(t, func() bool {
		_, ok := f.store.Get("streak")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
}
