package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryHistoryStore is a thread-safe, in-process HistoryStore holding at
// most limit turns per user.
type InMemoryHistoryStore struct {
	mu    sync.RWMutex
	users map[string][]Turn
	limit int
	now   func() time.Time
}

// NewInMemoryHistoryStore creates an empty history store keeping limit turns
// per user. A non-positive limit selects DefaultHistoryTurns.
func NewInMemoryHistoryStore(limit int) *InMemoryHistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryTurns
	}
	return &InMemoryHistoryStore{
		users: make(map[string][]Turn),
		limit: limit,
		now:   time.Now,
	}
}

// Compile-time interface check.
var _ HistoryStore = (*InMemoryHistoryStore)(nil)

// Append adds a turn to the user's history.
func (s *InMemoryHistoryStore) Append(_ context.Context, userID string, turn Turn) error {
	if turn.At.IsZero() {
		turn.At = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.users[userID], turn)
	if over := len(turns) - s.limit; over > 0 {
		turns = append([]Turn(nil), turns[over:]...)
	}
	s.users[userID] = turns
	return nil
}

// Recent returns the n most recent turns in chronological order.
func (s *InMemoryHistoryStore) Recent(_ context.Context, userID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.users[userID]
	if !ok || n <= 0 {
		return nil, nil
	}
	if n > len(turns) {
		n = len(turns)
	}
	result := make([]Turn, n)
	copy(result, turns[len(turns)-n:])
	return result, nil
}

// Purge removes the user's history.
func (s *InMemoryHistoryStore) Purge(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// Prune drops histories whose latest turn is older than maxIdle.
func (s *InMemoryHistoryStore) Prune(_ context.Context, maxIdle time.Duration) (int, error) {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for userID, turns := range s.users {
		if len(turns) == 0 || turns[len(turns)-1].At.Before(cutoff) {
			delete(s.users, userID)
			pruned++
		}
	}
	return pruned, nil
}

// Users returns the number of users with buffered history.
func (s *InMemoryHistoryStore) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
