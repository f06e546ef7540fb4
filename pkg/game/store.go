package game

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// ErrSessionNotFound is returned when no session exists for an ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore abstracts where session state lives between commands.
type SessionStore interface {
	Save(ctx context.Context, st puzzle.State) error
	Load(ctx context.Context, id string) (puzzle.State, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Locker serializes commands on one session. The returned func releases the
// lock.
type Locker interface {
	Lock(ctx context.Context, id string) (func(), error)
}

// MemoryStore implements SessionStore using an in-memory map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]puzzle.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]puzzle.State)}
}

func (s *MemoryStore) Save(_ context.Context, st puzzle.State) error {
	if st.ID == "" {
		return errors.New("session id is required")
	}
	cp, err := puzzle.Restore(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[st.ID] = cp.State()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (puzzle.State, error) {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return puzzle.State{}, ErrSessionNotFound
	}
	sess, err := puzzle.Restore(st)
	if err != nil {
		return puzzle.State{}, err
	}
	return sess.State(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns session IDs in sorted order.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}

// MemoryLocker hands out one mutex per session ID.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the session is free or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		sl.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() { l.release(id, sl) }, nil
	case <-ctx.Done():
		// The goroutine still owns the pending acquisition; release once it lands.
		go func() {
			<-acquired
			l.release(id, sl)
		}()
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) release(id string, sl *sessionLock) {
	sl.mu.Unlock()
	l.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}
