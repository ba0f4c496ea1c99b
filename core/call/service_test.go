package call

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marquesl99/chamada-visual/core"
	"github.com/marquesl99/chamada-visual/core/student"
	logsvc "github.com/marquesl99/chamada-visual/services/logger"
)

// fakeStore is a minimal Store for service tests; the real in-memory store
// lives in storage/callstore/inmem and has its own tests.
type fakeStore struct {
	mu    sync.Mutex
	calls map[string]Call
	subs  []chan []Call
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[string]Call)}
}

func (s *fakeStore) CreateCall(_ context.Context, c Call) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.ID] = c
	s.notify()
	return c, nil
}

func (s *fakeStore) DeleteCall(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[id]; !ok {
		return ErrNotFound
	}
	delete(s.calls, id)
	s.notify()
	return nil
}

func (s *fakeStore) QueryCalls(_ context.Context) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(), nil
}

func (s *fakeStore) Subscribe(ctx context.Context) (<-chan []Call, error) {
	ch := make(chan []Call, 16)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	ch <- s.list()
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
	}()
	return ch, nil
}

func (s *fakeStore) list() []Call {
	list := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CalledAt.After(list[j].CalledAt) })
	return list
}

func (s *fakeStore) notify() {
	for _, ch := range s.subs {
		ch <- s.list()
	}
}

func setup(t *testing.T) (*Service, *fakeStore, *time.Time) {
	t.Helper()
	conf := &core.Config{
		Call: core.CallConfig{
			MaxVisible:       10,
			InactivityWindow: 10 * time.Minute,
			SweepInterval:    time.Minute,
		},
	}
	store := newFakeStore()
	svc := NewService(store, logsvc.NewConsoleLoggerMock(), conf)

	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, store, &now
}

func TestCallOrdering(t *testing.T) {
	svc, _, now := setup(t)
	ctx := context.Background()

	_, err := svc.Call(ctx, student.Student{ID: 1, FullName: "Ana Silva", Class: "EI3 A"})
	require.NoError(t, err)
	*now = now.Add(time.Second)
	_, err = svc.Call(ctx, student.Student{ID: 2, FullName: "Bruno Souza", Class: "AF7 B"})
	require.NoError(t, err)

	list, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bruno Souza", list[0].StudentName, "most recent call comes first")
	assert.Equal(t, "Ana Silva", list[1].StudentName)
	assert.Equal(t, student.SegmentAF, list[0].Segment)
	assert.Equal(t, student.SegmentEI, list[1].Segment)
}

func TestCallTrimsToMaxVisible(t *testing.T) {
	svc, store, now := setup(t)
	ctx := context.Background()

	for i := 1; i <= 11; i++ {
		*now = now.Add(time.Second)
		_, err := svc.Call(ctx, student.Student{ID: i, FullName: fmt.Sprintf("Aluno %02d", i), Class: "AI2 A"})
		require.NoError(t, err)
	}

	stored, err := store.QueryCalls(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 10, "the oldest excess record is deleted store-side")

	list, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, list, 10)
	assert.Equal(t, "Aluno 11", list[0].StudentName)
	assert.Equal(t, "Aluno 02", list[9].StudentName, "Aluno 01 was trimmed")
}

func TestActiveExcludesExpired(t *testing.T) {
	svc, _, now := setup(t)
	ctx := context.Background()

	_, err := svc.Call(ctx, student.Student{ID: 1, FullName: "Ana Silva", Class: "EI3 A"})
	require.NoError(t, err)
	*now = now.Add(11 * time.Minute)
	_, err = svc.Call(ctx, student.Student{ID: 2, FullName: "Bruno Souza", Class: "AF7 B"})
	require.NoError(t, err)

	list, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "calls older than the window are hidden")
	assert.Equal(t, "Bruno Souza", list[0].StudentName)
}

func TestSweepDeletesExpired(t *testing.T) {
	svc, store, now := setup(t)
	ctx := context.Background()

	_, err := svc.Call(ctx, student.Student{ID: 1, FullName: "Ana Silva", Class: "EI3 A"})
	require.NoError(t, err)
	*now = now.Add(11 * time.Minute)
	_, err = svc.Call(ctx, student.Student{ID: 2, FullName: "Bruno Souza", Class: "AF7 B"})
	require.NoError(t, err)

	require.NoError(t, svc.sweep(ctx))

	stored, err := store.QueryCalls(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Bruno Souza", stored[0].StudentName)
}

func TestDismiss(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	c, err := svc.Call(ctx, student.Student{ID: 1, FullName: "Ana Silva", Class: "EI3 A"})
	require.NoError(t, err)

	require.NoError(t, svc.Dismiss(ctx, c.ID))
	assert.ErrorIs(t, svc.Dismiss(ctx, c.ID), ErrNotFound)

	list, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	svc, _, now := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := svc.Subscribe(ctx, All)
	require.NoError(t, err)
	assert.Empty(t, receive(t, sub), "first push is the (empty) current list")

	_, err = svc.Call(ctx, student.Student{ID: 1, FullName: "Ana Silva", Class: "EI3 A"})
	require.NoError(t, err)
	list := receive(t, sub)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Silva", list[0].StudentName)

	*now = now.Add(time.Second)
	_, err = svc.Call(ctx, student.Student{ID: 2, FullName: "Bruno Souza", Class: "AF7 B"})
	require.NoError(t, err)
	list = receive(t, sub)
	require.Len(t, list, 2)
	assert.Equal(t, "Bruno Souza", list[0].StudentName, "new call is the most recent entry")
}

func TestSubscribeFiltersSegments(t *testing.T) {
	svc, _, now := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := svc.Subscribe(ctx, Infantil)
	require.NoError(t, err)
	receive(t, sub) // initial empty list

	_, err = svc.Call(ctx, student.Student{ID: 1, FullName: "Bruno Souza", Class: "AF7 B"})
	require.NoError(t, err)
	assert.Empty(t, receive(t, sub), "AF call is invisible to the EI panel")

	*now = now.Add(time.Second)
	_, err = svc.Call(ctx, student.Student{ID: 2, FullName: "Ana Silva", Class: "EI3 A"})
	require.NoError(t, err)

	// earlier empty pushes may coalesce with this one; read until the EI call shows
	deadline := time.After(time.Second)
	for {
		var list []Call
		select {
		case list = <-sub:
		case <-deadline:
			t.Fatal("timed out waiting for the EI call")
		}
		if len(list) == 1 {
			assert.Equal(t, "Ana Silva", list[0].StudentName)
			return
		}
	}
}

func receive(t *testing.T, sub <-chan []Call) []Call {
	t.Helper()
	select {
	case list, ok := <-sub:
		require.True(t, ok, "subscription closed unexpectedly")
		return list
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a subscription push")
		return nil
	}
}
