package inmemstore

import (
	"context"
	"sort"
	"sync"

	"github.com/marquesl99/chamada-visual/core/call"
)

// Store is an in-memory call.Store with channel fan-out. It backs tests and
// local development without Firestore credentials.
type Store struct {
	mu      sync.RWMutex
	calls   map[string]call.Call
	subs    map[int]chan []call.Call
	nextSub int
}

var _ call.Store = (*Store)(nil)

func Open() (*Store, error) {
	return &Store{
		calls: make(map[string]call.Call),
		subs:  make(map[int]chan []call.Call),
	}, nil
}

func (s *Store) CreateCall(_ context.Context, c call.Call) (call.Call, error) {
	s.mu.Lock()
	s.calls[c.ID] = c
	s.broadcast()
	s.mu.Unlock()
	return c, nil
}

func (s *Store) DeleteCall(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[id]; !ok {
		return call.ErrNotFound
	}
	delete(s.calls, id)
	s.broadcast()
	return nil
}

func (s *Store) QueryCalls(_ context.Context) ([]call.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

func (s *Store) Subscribe(ctx context.Context) (<-chan []call.Call, error) {
	ch := make(chan []call.Call, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshot()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// snapshot returns the current list, newest first. Callers hold s.mu.
func (s *Store) snapshot() []call.Call {
	list := make([]call.Call, 0, len(s.calls))
	for _, c := range s.calls {
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CalledAt.After(list[j].CalledAt) })
	return list
}

// broadcast pushes the current list to every subscriber, replacing any update
// a slow subscriber has not read yet. Callers hold s.mu.
func (s *Store) broadcast() {
	snap := s.snapshot()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
