package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxFactsPerUser bounds an InMemoryStore when no limit is given.
const DefaultMaxFactsPerUser = 1000

// InMemoryStore is a thread-safe, size-bounded, in-process implementation of
// Store. When a user reaches the limit, the least recently used fact is
// evicted to make room. Contents are lost when the process exits.
type InMemoryStore struct {
	mu         sync.RWMutex
	users      map[string]map[string]*Fact // userID → topic → fact
	maxPerUser int
	now        func() time.Time
}

// NewInMemoryStore creates an empty store holding at most maxPerUser facts
// per user. A non-positive limit selects DefaultMaxFactsPerUser.
func NewInMemoryStore(maxPerUser int) *InMemoryStore {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxFactsPerUser
	}
	return &InMemoryStore{
		users:      make(map[string]map[string]*Fact),
		maxPerUser: maxPerUser,
		now:        time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Upsert inserts or updates a fact by (userID, topic).
func (s *InMemoryStore) Upsert(_ context.Context, userID string, in FactInput) (UpsertResult, error) {
	in, err := in.Normalize()
	if err != nil {
		return UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	topics, ok := s.users[userID]
	if !ok {
		topics = make(map[string]*Fact)
		s.users[userID] = topics
	}

	if existing, ok := topics[in.Topic]; ok {
		existing.Fact = in.Fact
		existing.Category = in.Category
		existing.Tags = in.Tags
		existing.Examples = in.Examples
		existing.Confidence += ConfidenceStep
		existing.UpdatedAt = now
		return UpsertResult{Fact: cloneFact(existing), Updated: true}, nil
	}

	if len(topics) >= s.maxPerUser {
		evictLeastRecentlyUsed(topics)
	}

	f := &Fact{
		ID:         uuid.NewString(),
		UserID:     userID,
		Topic:      in.Topic,
		Fact:       in.Fact,
		Category:   in.Category,
		Tags:       in.Tags,
		Examples:   in.Examples,
		Source:     DefaultSource,
		Confidence: DefaultConfidence,
		LastUsed:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	topics[in.Topic] = f
	return UpsertResult{Fact: cloneFact(f)}, nil
}

// Get returns a fact and records the access.
func (s *InMemoryStore) Get(_ context.Context, userID, topic string) (Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.users[userID][NormalizeTopic(topic)]
	if !ok {
		return Fact{}, ErrFactNotFound
	}
	f.UsageCount++
	f.LastUsed = s.now()
	return cloneFact(f), nil
}

// List returns the user's facts, most recently used first.
func (s *InMemoryStore) List(_ context.Context, userID string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	facts := s.snapshot(userID, nil)
	s.mu.RUnlock()

	SortByRecency(facts)
	if len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

// Recent returns the user's facts, most recently taught or updated first.
func (s *InMemoryStore) Recent(_ context.Context, userID string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	facts := s.snapshot(userID, nil)
	s.mu.RUnlock()

	SortByUpdate(facts)
	if len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

// Search returns the user's facts matching query by substring.
func (s *InMemoryStore) Search(_ context.Context, userID, query string) ([]Fact, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	facts := s.snapshot(userID, func(f *Fact) bool { return f.Matches(q) })
	s.mu.RUnlock()

	SortByRelevance(facts)
	return facts, nil
}

// Delete removes a fact.
func (s *InMemoryStore) Delete(_ context.Context, userID, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := s.users[userID]
	key := NormalizeTopic(topic)
	if _, ok := topics[key]; !ok {
		return ErrFactNotFound
	}
	delete(topics, key)
	if len(topics) == 0 {
		delete(s.users, userID)
	}
	return nil
}

// Count returns the number of facts stored for a user.
func (s *InMemoryStore) Count(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]), nil
}

// Ping always succeeds.
func (s *InMemoryStore) Ping(_ context.Context) error { return nil }

// snapshot copies the user's facts that pass keep (nil keeps all).
// Caller must hold s.mu.
func (s *InMemoryStore) snapshot(userID string, keep func(*Fact) bool) []Fact {
	topics := s.users[userID]
	out := make([]Fact, 0, len(topics))
	for _, f := range topics {
		if keep == nil || keep(f) {
			out = append(out, cloneFact(f))
		}
	}
	return out
}

func evictLeastRecentlyUsed(topics map[string]*Fact) {
	var oldest *Fact
	for _, f := range topics {
		if oldest == nil || f.LastUsed.Before(oldest.LastUsed) {
			oldest = f
		}
	}
	if oldest != nil {
		delete(topics, oldest.Topic)
	}
}

func cloneFact(f *Fact) Fact {
	cp := *f
	cp.Tags = slices.Clone(f.Tags)
	cp.Examples = slices.Clone(f.Examples)
	return cp
}

// SortByRecency orders facts by LastUsed desc, then Confidence desc, then topic.
func SortByRecency(facts []Fact) {
	slices.SortFunc(facts, func(a, b Fact) int {
		if c := b.LastUsed.Compare(a.LastUsed); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
}

// SortByUpdate orders facts by UpdatedAt desc, then topic.
func SortByUpdate(facts []Fact) {
	slices.SortFunc(facts, func(a, b Fact) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
}

// SortByRelevance orders facts by Confidence desc, then UsageCount desc, then topic.
func SortByRelevance(facts []Fact) {
	slices.SortFunc(facts, func(a, b Fact) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(b.UsageCount, a.UsageCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
}
