package session

import (
	"sync"
	"time"

	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
)

// Store owns the current State. Updates are serialized; readers get copies.
// It also carries the single loading flag shared by all user actions.
type Store struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		state: New(),
		now:   now,
		subs:  make(map[chan Snapshot]struct{}),
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Snapshot(s.now())
}

// Update applies a transition and publishes the resulting snapshot.
func (s *Store) Update(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	s.publish(s.state.Snapshot(s.now()))
	return s.state.clone()
}

// Begin claims the loading flag for a. A second action while one is in
// flight gets a BUSY error. The returned func releases the flag.
func (s *Store) Begin(a Action) (func(), error) {
	s.mu.Lock()
	if s.state.Loading != "" {
		current := s.state.Loading
		s.mu.Unlock()
		return nil, apperrors.NewBusy(string(current))
	}
	s.state = s.state.withLoading(a)
	s.publish(s.state.Snapshot(s.now()))
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.Update(func(st State) State { return st.withLoading("") })
		})
	}, nil
}

// Subscribe returns a channel of snapshots in update order. Slow
// subscribers miss intermediate snapshots rather than block updates.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Store) Now() time.Time {
	return s.now()
}
