package state_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/state"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	v := state.NumberValue(40)
	assert.Equal(t, "40", v.String())
	f, ok := v.Float()
	require.True(t, ok)
	assert.InDelta(t, 40.0, f, 0)

	battery := state.StringValue("87.46")
	assert.Equal(t, "87.46", battery.String())
	f, ok = battery.Float()
	require.True(t, ok)
	assert.InDelta(t, 87.46, f, 1e-9)

	_, ok = state.StringValue("2026-10-18T10:00:00Z").Float()
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, "b", state.NumberValue(5)))
	require.NoError(t, store.Publish(ctx, "a", state.StringValue("87.46")))
	require.NoError(t, store.Publish(ctx, "b", state.NumberValue(6)))

	item, ok := store.Get("b")
	require.True(t, ok)
	assert.Equal(t, state.NumberValue(6), item.Value)
	assert.False(t, item.UpdatedAt.IsZero())

	items := store.List()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)

	store.Forget("a")
	_, ok = store.Get("a")
	assert.False(t, ok)

	err := store.Publish(ctx, "", state.NumberValue(1))
	assert.True(t, errors.HasCode(err, state.ErrInvalidItem))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := state.Config{
		Enabled:   true,
		DBPath:    filepath.Join(dir, "nested", "state.db"),
		BackupDir: filepath.Join(dir, "backups"),
	}
	log := logger.New("state")
	ctx := context.Background()

	store, err := state.NewStore(cfg, log)
	require.NoError(t, err)

	require.NoError(t, store.Publish(ctx, "Dog_Streak", state.NumberValue(5)))
	require.NoError(t, store.Publish(ctx, "Dog_Battery", state.StringValue("87.46")))
	require.NoError(t, store.Publish(ctx, "Dog_CheckIn", state.StringValue("2026-10-18T10:00:00Z")))
	require.NoError(t, store.Publish(ctx, "Dog_Streak", state.NumberValue(6)))
	require.NoError(t, store.Close())

	reopened, err := state.NewStore(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	items, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3, "one row per item, latest value only")

	assert.Equal(t, "Dog_Battery", items[0].Name)
	assert.Equal(t, state.StringValue("87.46"), items[0].Value)
	assert.Equal(t, state.StringValue("2026-10-18T10:00:00Z"), items[1].Value)
	assert.Equal(t, state.NumberValue(6), items[2].Value)
	assert.WithinDuration(t, time.Now(), items[2].UpdatedAt, time.Minute)

	require.NoError(t, reopened.Delete(ctx, "Dog_Battery"))
	items, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestDisabledStoreIsNoop(t *testing.T) {
	store, err := state.NewStore(state.Config{DBPath: filepath.Join(t.TempDir(), "state.db")}, logger.New("state"))
	require.NoError(t, err)

	require.NoError(t, store.Publish(context.Background(), "x", state.NumberValue(1)))
	items, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, store.Close())
}

func TestStoreConfigValidation(t *testing.T) {
	_, err := state.NewStore(state.Config{Enabled: true}, logger.New("state"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, state.ErrInvalidDBPath))
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	pub, err := state.NewRedisPublisher(ctx, state.RedisConfig{Addr: mr.Addr(), Channel: "dogs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("dogs")

	require.NoError(t, pub.Publish(ctx, "Dog_Streak", state.NumberValue(5)))

	got, err := mr.Get(pub.Key("Dog_Streak"))
	require.NoError(t, err)
	assert.Equal(t, "5", got)
	assert.Equal(t, "whistle:item:Dog_Streak", pub.Key("Dog_Streak"))

	select {
	case msg := <-sub.Messages():
		var update state.Update
		require.NoError(t, sonic.Unmarshal([]byte(msg.Message), &update))
		assert.Equal(t, "Dog_Streak", update.Item)
		assert.Equal(t, "5", update.Value)
		assert.Equal(t, state.KindNumber, update.Kind)
	case <-time.After(time.Second):
		t.Fatal("no update published on channel")
	}
}

func TestRedisPublisherUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = state.NewRedisPublisher(ctx, state.RedisConfig{Addr: addr})
	require.Error(t, err)
}

type failingPublisher struct{ closed bool }

func (*failingPublisher) Publish(context.Context, string, state.Value) error {
	return errors.New().New(errors.ErrInternal)
}

func (f *failingPublisher) Close() error {
	f.closed = true
	return nil
}

func TestFanout(t *testing.T) {
	mem := state.NewMemoryStore()
	failing := &failingPublisher{}
	fan := state.Fanout{failing, mem}

	err := fan.Publish(context.Background(), "Dog_Streak", state.NumberValue(5))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, state.ErrPublishFailed))

	item, ok := mem.Get("Dog_Streak")
	require.True(t, ok, "later publishers still receive the update")
	assert.Equal(t, state.NumberValue(5), item.Value)

	require.NoError(t, fan.Close())
	assert.True(t, failing.closed)
}
