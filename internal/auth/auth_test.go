package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/whistlectl/internal/auth"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	mu     sync.Mutex
	calls  atomic.Int32
	tokens []string
	errs   []error
	delay  time.Duration
	seen   []auth.Credentials
}

func (f *fakeExchanger) ExchangeToken(_ context.Context, email, password string) (string, error) {
	n := int(f.calls.Add(1)) - 1
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, auth.Credentials{Username: email, Password: password})

	if n < len(f.errs) && f.errs[n] != nil {
		return "", f.errs[n]
	}
	if n < len(f.tokens) {
		return f.tokens[n], nil
	}
	return "token", nil
}

func TestSetCredentialsImmutable(t *testing.T) {
	authCtx := auth.NewContext()

	require.NoError(t, authCtx.SetCredentials("owner@example.com", ""))
	assert.Equal(t, auth.Credentials{Username: "owner@example.com"}, authCtx.Credentials())

	select {
	case <-authCtx.Ready():
		t.Fatal("ready before password was set")
	default:
	}

	require.NoError(t, authCtx.SetCredentials("  ", "secret"))
	assert.Equal(t, auth.Credentials{Username: "owner@example.com", Password: "secret"}, authCtx.Credentials())

	err := authCtx.SetCredentials("other@example.com", "secret")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, auth.ErrCredentialsLocked))
	assert.Equal(t, "owner@example.com", authCtx.Credentials().Username)

	select {
	case <-authCtx.Ready():
	default:
		t.Fatal("not ready after both fields were set")
	}
}

func TestWaitReadyBlocksUntilCredentials(t *testing.T) {
	authCtx := auth.NewContext()

	done := make(chan error, 1)
	go func() {
		done <- authCtx.WaitReady(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("WaitReady returned without credentials")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, authCtx.SetCredentials("owner@example.com", "secret"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitReady did not return after credentials were set")
	}
}

func TestWaitReadyCanceled(t *testing.T) {
	authCtx := auth.NewContext()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := authCtx.WaitReady(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, auth.ErrWaitCanceled))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTokenCached(t *testing.T) {
	authCtx := auth.NewContext()
	require.NoError(t, authCtx.SetCredentials("owner@example.com", "secret"))

	exchanger := &fakeExchanger{tokens: []string{"tok-1"}}
	manager := auth.NewManager(authCtx, exchanger)

	for i := 0; i < 3; i++ {
		token, err := manager.EnsureToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	}

	assert.Equal(t, int32(1), exchanger.calls.Load())
	assert.Equal(t, []auth.Credentials{{Username: "owner@example.com", Password: "secret"}}, exchanger.seen)
}

func TestTokenFailureLeavesCacheEmpty(t *testing.T) {
	authCtx := auth.NewContext()
	require.NoError(t, authCtx.SetCredentials("owner@example.com", "secret"))

	rejected := errors.New().New(auth.ErrInvalidCredentials)
	exchanger := &fakeExchanger{
		errs:   []error{rejected},
		tokens: []string{"", "tok-2"},
	}
	manager := auth.NewManager(authCtx, exchanger)

	_, err := manager.Token(t.Context())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, auth.ErrInvalidCredentials))
	assert.Empty(t, manager.Cached())

	token, err := manager.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, "tok-2", manager.Cached())
	assert.Equal(t, int32(2), exchanger.calls.Load())
}

func TestTokenWithoutCredentials(t *testing.T) {
	exchanger := &fakeExchanger{}
	manager := auth.NewManager(auth.NewContext(), exchanger)

	_, err := manager.Token(t.Context())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, auth.ErrCredentialsMissing))
	assert.Equal(t, int32(0), exchanger.calls.Load())
}

func TestConcurrentCallersShareExchange(t *testing.T) {
	authCtx := auth.NewContext()
	require.NoError(t, authCtx.SetCredentials("owner@example.com", "secret"))

	exchanger := &fakeExchanger{tokens: []string{"tok-1"}, delay: 50 * time.Millisecond}
	manager := auth.NewManager(authCtx, exchanger)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := manager.EnsureToken(context.Background())
			assert.NoError(t, err)
			results[i] = token
		}(i)
	}
	wg.Wait()

	for _, token := range results {
		assert.Equal(t, "tok-1", token)
	}
	assert.Equal(t, int32(1), exchanger.calls.Load())
}

// ctxExchanger blocks until released and reports whether its context ended
type ctxExchanger struct {
	started  chan struct{}
	release  chan struct{}
	ctxErr   chan error
	startOne sync.Once
}

func (c *ctxExchanger) ExchangeToken(ctx context.Context, _, _ string) (string, error) {
	c.startOne.Do(func() { close(c.started) })
	<-c.release
	c.ctxErr <- ctx.Err()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "tok-shared", nil
}

func TestSharedExchangeSurvivesFirstCallerCancel(t *testing.T) {
	authCtx := auth.NewContext()
	require.NoError(t, authCtx.SetCredentials("owner@example.com", "secret"))

	exchanger := &ctxExchanger{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	manager := auth.NewManager(authCtx, exchanger)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := manager.Token(firstCtx)
		first <- err
	}()
	<-exchanger.started

	second := make(chan string, 1)
	go func() {
		token, err := manager.Token(context.Background())
		assert.NoError(t, err)
		second <- token
	}()

	cancelFirst()
	close(exchanger.release)

	require.NoError(t, <-exchanger.ctxErr)
	assert.Equal(t, "tok-shared", <-second)
	require.NoError(t, <-first)
	assert.Equal(t, "tok-shared", manager.Cached())
}
