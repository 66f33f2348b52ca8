package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// InMemoryPreferenceStore is a thread-safe, in-process PreferenceStore.
type InMemoryPreferenceStore struct {
	mu    sync.RWMutex
	users map[string]*Preferences
	now   func() time.Time
}

// NewInMemoryPreferenceStore creates an empty preference store.
func NewInMemoryPreferenceStore() *InMemoryPreferenceStore {
	return &InMemoryPreferenceStore{
		users: make(map[string]*Preferences),
		now:   time.Now,
	}
}

// Compile-time interface check.
var _ PreferenceStore = (*InMemoryPreferenceStore)(nil)

// getOrCreate returns the record for userID. Caller must hold s.mu for writing.
func (s *InMemoryPreferenceStore) getOrCreate(userID string, now time.Time) *Preferences {
	p, ok := s.users[userID]
	if !ok {
		p = &Preferences{
			UserID:            userID,
			Values:            make(map[string]string),
			ConversationStyle: StyleFriendly,
			LastActive:        now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		s.users[userID] = p
	}
	return p
}

// Touch records a message from the user.
func (s *InMemoryPreferenceStore) Touch(_ context.Context, userID string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := s.getOrCreate(userID, now)
	p.TotalMessages++
	p.LastActive = now
	p.UpdatedAt = now
	return clonePreferences(p), nil
}

// SetPreference stores a key/value preference.
func (s *InMemoryPreferenceStore) SetPreference(_ context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := s.getOrCreate(userID, now)
	p.Values[key] = value
	p.LastActive = now
	p.UpdatedAt = now
	return nil
}

// AddFavoriteTopic adds topic to the favorites set.
func (s *InMemoryPreferenceStore) AddFavoriteTopic(_ context.Context, userID, topic string) error {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := s.getOrCreate(userID, now)
	if !slices.Contains(p.FavoriteTopics, topic) {
		p.FavoriteTopics = append(p.FavoriteTopics, topic)
	}
	p.LastActive = now
	p.UpdatedAt = now
	return nil
}

// IncrementLearned bumps the learned facts counter.
func (s *InMemoryPreferenceStore) IncrementLearned(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := s.getOrCreate(userID, now)
	p.LearnedFactsCount++
	p.UpdatedAt = now
	return nil
}

// Get returns the user's preference record.
func (s *InMemoryPreferenceStore) Get(_ context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[userID]
	if !ok {
		return Preferences{}, ErrPreferencesNotFound
	}
	return clonePreferences(p), nil
}

// Ping always succeeds.
func (s *InMemoryPreferenceStore) Ping(_ context.Context) error { return nil }

func clonePreferences(p *Preferences) Preferences {
	cp := *p
	cp.Values = maps.Clone(p.Values)
	cp.FavoriteTopics = slices.Clone(p.FavoriteTopics)
	return cp
}
