package auth

import (
	"context"
	"sync"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"golang.org/x/sync/singleflight"
)

// Exchanger trades credentials for an auth token
type Exchanger interface {
	ExchangeToken(ctx context.Context, email, password string) (string, error)
}

// Manager owns the cached auth token. The token never expires locally; it is
// only requested while the cache is empty.
type Manager struct {
	authCtx   *Context
	exchanger Exchanger
	log       logger.Logger

	mu    sync.RWMutex
	token string
	group singleflight.Group
}

func NewManager(authCtx *Context, exchanger Exchanger) *Manager {
	return &Manager{
		authCtx:   authCtx,
		exchanger: exchanger,
		log:       logger.New("auth"),
	}
}

// EnsureToken waits for credentials and returns the cached or a freshly
// exchanged token.
func (m *Manager) EnsureToken(ctx context.Context) (string, error) {
	if err := m.authCtx.WaitReady(ctx); err != nil {
		return "", err
	}

	return m.Token(ctx)
}

// Token returns the cached token, exchanging credentials when none is cached.
// Unlike EnsureToken it fails immediately when credentials are missing.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if token := m.Cached(); token != "" {
		return token, nil
	}

	creds := m.authCtx.Credentials()
	if !creds.Complete() {
		return "", errors.New().New(ErrCredentialsMissing)
	}

	v, err, shared := m.group.Do("token", func() (interface{}, error) {
		// Another exchange may have finished while we waited for the group
		if token := m.Cached(); token != "" {
			return token, nil
		}

		// The exchange is shared by every waiter, so it must not end with the
		// first caller's context; the client's request timeout bounds it.
		token, err := m.exchanger.ExchangeToken(context.WithoutCancel(ctx), creds.Username, creds.Password)
		if err != nil {
			m.clear()
			return "", err
		}

		m.mu.Lock()
		m.token = token
		m.mu.Unlock()

		m.log.Debug().Msg("Auth token acquired")
		return token, nil
	})
	if err != nil {
		m.log.Error().Err(err).Bool("shared", shared).Msg("Failed to get auth token")
		return "", err
	}

	return v.(string), nil
}

// Cached returns the current token without touching the network
func (m *Manager) Cached() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.token
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
