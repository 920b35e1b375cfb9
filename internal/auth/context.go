package auth

import (
	"context"
	"strings"
	"sync"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
)

// Credentials identify the Whistle account
type Credentials struct {
	Username string
	Password string
}

// Complete reports whether both fields are set
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// Context holds the process-wide account credentials. It is created once at
// startup and shared by the token manager, the binding resolver and the
// refresh engine. Ready is closed exactly once, when both fields are set.
type Context struct {
	mu    sync.RWMutex
	creds Credentials
	ready chan struct{}
	once  sync.Once
	log   logger.Logger
}

func NewContext() *Context {
	return &Context{
		ready: make(chan struct{}),
		log:   logger.New("auth"),
	}
}

// SetCredentials assigns each non-blank field that has not been set before.
// Fields are immutable once assigned; a differing value is ignored and
// reported through ErrCredentialsLocked.
func (c *Context) SetCredentials(username, password string) error {
	c.mu.Lock()
	var locked []string
	if !isBlank(username) {
		if c.creds.Username == "" {
			c.creds.Username = username
		} else if c.creds.Username != username {
			locked = append(locked, "username")
		}
	}
	if !isBlank(password) {
		if c.creds.Password == "" {
			c.creds.Password = password
		} else if c.creds.Password != password {
			locked = append(locked, "password")
		}
	}
	complete := c.creds.Complete()
	c.mu.Unlock()

	if complete {
		c.once.Do(func() {
			c.log.Debug().Msg("Credentials available")
			close(c.ready)
		})
	}

	if len(locked) > 0 {
		c.log.Warn().Strs("fields", locked).Msg("Credentials already set, restart to change them")
		return errors.New().WithData(ErrCredentialsLocked, locked)
	}

	return nil
}

// Credentials returns a copy of the current credentials
func (c *Context) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.creds
}

// Ready is closed once both username and password are known
func (c *Context) Ready() <-chan struct{} {
	return c.ready
}

// WaitReady blocks until credentials are available or ctx is done.
// There is deliberately no timeout.
func (c *Context) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	default:
	}

	c.log.Info().Msg("Waiting for username / password details from configuration")

	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return errors.New().Wrap(ErrWaitCanceled, ctx.Err())
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
