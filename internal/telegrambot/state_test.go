package telegrambot

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStateStore(t *testing.T) (*StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStateStore(client), mr
}

func TestStateStoreConnectCycle(t *testing.T) {
	store, _ := testStateStore(t)
	ctx := context.Background()

	connecting, err := store.IsConnecting(ctx, 42)
	require.NoError(t, err)
	assert.False(t, connecting)

	require.NoError(t, store.SetConnecting(ctx, 42))

	connecting, err = store.IsConnecting(ctx, 42)
	require.NoError(t, err)
	assert.True(t, connecting)

	// Other chats are unaffected.
	connecting, err = store.IsConnecting(ctx, 43)
	require.NoError(t, err)
	assert.False(t, connecting)

	require.NoError(t, store.Clear(ctx, 42))
	connecting, err = store.IsConnecting(ctx, 42)
	require.NoError(t, err)
	assert.False(t, connecting)
}

func TestStateStoreKeyAndTTL(t *testing.T) {
	store, mr := testStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetConnecting(ctx, 42))

	value, err := mr.Get("telegram_42")
	require.NoError(t, err)
	assert.Equal(t, stateConnect, value)
	assert.Equal(t, stateTTL, mr.TTL("telegram_42"))
}

func TestStateStoreExpires(t *testing.T) {
	store, mr := testStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetConnecting(ctx, 42))
	mr.FastForward(stateTTL)

	connecting, err := store.IsConnecting(ctx, 42)
	require.NoError(t, err)
	assert.False(t, connecting)
}
