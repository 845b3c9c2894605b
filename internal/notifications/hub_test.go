package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterLimits(t *testing.T) {
	hub := NewHub()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register("user_1", nil)
		require.NoError(t, err)
	}
	_, err := hub.Register("user_1", nil)
	assert.ErrorIs(t, err, ErrUserFull)

	_, err = hub.Register("user_2", nil)
	assert.NoError(t, err)
	assert.Equal(t, maxConnsPerUser+1, hub.ConnectionCount())
}

func TestHub_BroadcastRoutesByUser(t *testing.T) {
	hub := NewHub()
	a, err := hub.Register("user_a", nil)
	require.NoError(t, err)
	b, err := hub.Register("user_b", nil)
	require.NoError(t, err)

	hub.Broadcast("user_a", "only-a")
	hub.BroadcastAll("everyone")

	assert.Equal(t, "only-a", string(<-a.Send))
	assert.Equal(t, "everyone", string(<-a.Send))
	assert.Equal(t, "everyone", string(<-b.Send))
	assert.Empty(t, b.Send)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("user_a", nil)
	require.NoError(t, err)

	hub.UnregisterClient(c)
	hub.UnregisterClient(c)
	assert.Equal(t, 0, hub.ConnectionCount())

	_, open := <-c.Send
	assert.False(t, open)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("user_a", nil)
	require.NoError(t, err)

	for i := 0; i < cap(c.Send)+5; i++ {
		c.TrySend([]byte("x"))
	}
	assert.Len(t, c.Send, cap(c.Send))

	hub.UnregisterClient(c)
	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("user_a", nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	_, open := <-c.Send
	assert.False(t, open)

	_, err = hub.Register("user_b", nil)
	assert.ErrorIs(t, err, ErrServerFull)
}
