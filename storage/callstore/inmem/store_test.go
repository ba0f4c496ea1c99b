package inmemstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marquesl99/chamada-visual/core/call"
)

func record(id string, calledAt time.Time) call.Call {
	return call.Call{ID: id, StudentName: "Aluno " + id, Class: "AI2 A", CalledAt: calledAt}
}

func TestCreateDeleteQuery(t *testing.T) {
	store, err := Open()
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	_, err = store.CreateCall(ctx, record("a", base))
	require.NoError(t, err)
	_, err = store.CreateCall(ctx, record("b", base.Add(time.Second)))
	require.NoError(t, err)

	list, err := store.QueryCalls(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")
	assert.Equal(t, "a", list[1].ID)

	require.NoError(t, store.DeleteCall(ctx, "a"))
	assert.ErrorIs(t, store.DeleteCall(ctx, "a"), call.ErrNotFound)

	list, err = store.QueryCalls(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestSubscribeFanOut(t *testing.T) {
	store, err := Open()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	sub1, err := store.Subscribe(ctx)
	require.NoError(t, err)
	sub2, err := store.Subscribe(ctx)
	require.NoError(t, err)

	assert.Empty(t, receive(t, sub1), "full current list on attach")
	assert.Empty(t, receive(t, sub2))

	_, err = store.CreateCall(ctx, record("a", base))
	require.NoError(t, err)

	for _, sub := range []<-chan []call.Call{sub1, sub2} {
		list := receive(t, sub)
		require.Len(t, list, 1)
		assert.Equal(t, "a", list[0].ID)
	}
}

func TestSubscribeKeepsLatestForSlowReaders(t *testing.T) {
	store, err := Open()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	sub, err := store.Subscribe(ctx)
	require.NoError(t, err)

	// never read in between; older pushes are replaced, not queued
	for i := 0; i < 5; i++ {
		_, err = store.CreateCall(ctx, record(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	list := receive(t, sub)
	require.Len(t, list, 5)
	assert.Equal(t, "e", list[0].ID, "the pending push is the latest list")
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	store, err := Open()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := store.Subscribe(ctx)
	require.NoError(t, err)
	receive(t, sub)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "channel closes when the subscriber goes away")

	// writes after the subscriber left must not block
	_, err = store.CreateCall(context.Background(), record("z", time.Now()))
	require.NoError(t, err)
}

func receive(t *testing.T, sub <-chan []call.Call) []call.Call {
	t.Helper()
	select {
	case list, ok := <-sub:
		require.True(t, ok, "subscription closed unexpectedly")
		return list
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a push")
		return nil
	}
}
