package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// degrader tracks whether a persistent backend has been abandoned in favour
// of its in-process replacement. Once tripped it stays tripped until the
// process restarts, so reads never miss writes that went to memory.
type degrader struct {
	name     string
	logger   *slog.Logger
	degraded atomic.Bool
}

// trip reports whether err should switch the store to memory, logging the
// transition the first time it happens.
func (d *degrader) trip(op string, err error) bool {
	if !errors.Is(err, ErrUnavailable) {
		return false
	}
	if d.degraded.CompareAndSwap(false, true) {
		d.logger.Warn("persistent store unavailable, degrading to in-memory store",
			"store", d.name,
			"op", op,
			"error", err,
		)
	}
	return true
}

// FallbackStore serves facts from a primary Store and switches to an
// in-process InMemoryStore for the rest of the process lifetime after the
// primary reports ErrUnavailable. Other errors are returned unchanged.
type FallbackStore struct {
	primary Store
	memory  *InMemoryStore
	state   degrader
}

// NewFallbackStore wraps primary with an in-memory fallback.
func NewFallbackStore(primary Store, fallback *InMemoryStore, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{
		primary: primary,
		memory:  fallback,
		state:   degrader{name: "knowledge", logger: logger},
	}
}

// Compile-time interface check.
var _ Store = (*FallbackStore)(nil)

// Degraded reports whether the store is serving from memory.
func (s *FallbackStore) Degraded() bool { return s.state.degraded.Load() }

func (s *FallbackStore) active() Store {
	if s.Degraded() {
		return s.memory
	}
	return s.primary
}

// Upsert implements Store.
func (s *FallbackStore) Upsert(ctx context.Context, userID string, in FactInput) (UpsertResult, error) {
	res, err := s.active().Upsert(ctx, userID, in)
	if err != nil && s.state.trip("upsert", err) {
		return s.memory.Upsert(ctx, userID, in)
	}
	return res, err
}

// Get implements Store.
func (s *FallbackStore) Get(ctx context.Context, userID, topic string) (Fact, error) {
	f, err := s.active().Get(ctx, userID, topic)
	if err != nil && s.state.trip("get", err) {
		return s.memory.Get(ctx, userID, topic)
	}
	return f, err
}

// List implements Store.
func (s *FallbackStore) List(ctx context.Context, userID string, limit int) ([]Fact, error) {
	facts, err := s.active().List(ctx, userID, limit)
	if err != nil && s.state.trip("list", err) {
		return s.memory.List(ctx, userID, limit)
	}
	return facts, err
}

// Recent implements Store.
func (s *FallbackStore) Recent(ctx context.Context, userID string, limit int) ([]Fact, error) {
	facts, err := s.active().Recent(ctx, userID, limit)
	if err != nil && s.state.trip("recent", err) {
		return s.memory.Recent(ctx, userID, limit)
	}
	return facts, err
}

// Search implements Store.
func (s *FallbackStore) Search(ctx context.Context, userID, query string) ([]Fact, error) {
	facts, err := s.active().Search(ctx, userID, query)
	if err != nil && s.state.trip("search", err) {
		return s.memory.Search(ctx, userID, query)
	}
	return facts, err
}

// Delete implements Store.
func (s *FallbackStore) Delete(ctx context.Context, userID, topic string) error {
	err := s.active().Delete(ctx, userID, topic)
	if err != nil && s.state.trip("delete", err) {
		return s.memory.Delete(ctx, userID, topic)
	}
	return err
}

// Count implements Store.
func (s *FallbackStore) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.active().Count(ctx, userID)
	if err != nil && s.state.trip("count", err) {
		return s.memory.Count(ctx, userID)
	}
	return n, err
}

// Ping checks the primary store even when degraded, so health reports
// reflect the backend's real connectivity.
func (s *FallbackStore) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}

// FallbackPreferenceStore is the PreferenceStore counterpart of FallbackStore.
type FallbackPreferenceStore struct {
	primary PreferenceStore
	memory  *InMemoryPreferenceStore
	state   degrader
}

// NewFallbackPreferenceStore wraps primary with an in-memory fallback.
func NewFallbackPreferenceStore(primary PreferenceStore, fallback *InMemoryPreferenceStore, logger *slog.Logger) *FallbackPreferenceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackPreferenceStore{
		primary: primary,
		memory:  fallback,
		state:   degrader{name: "preferences", logger: logger},
	}
}

// Compile-time interface check.
var _ PreferenceStore = (*FallbackPreferenceStore)(nil)

// Degraded reports whether the store is serving from memory.
func (s *FallbackPreferenceStore) Degraded() bool { return s.state.degraded.Load() }

func (s *FallbackPreferenceStore) active() PreferenceStore {
	if s.Degraded() {
		return s.memory
	}
	return s.primary
}

// Touch implements PreferenceStore.
func (s *FallbackPreferenceStore) Touch(ctx context.Context, userID string) (Preferences, error) {
	p, err := s.active().Touch(ctx, userID)
	if err != nil && s.state.trip("touch", err) {
		return s.memory.Touch(ctx, userID)
	}
	return p, err
}

// SetPreference implements PreferenceStore.
func (s *FallbackPreferenceStore) SetPreference(ctx context.Context, userID, key, value string) error {
	err := s.active().SetPreference(ctx, userID, key, value)
	if err != nil && s.state.trip("set_preference", err) {
		return s.memory.SetPreference(ctx, userID, key, value)
	}
	return err
}

// AddFavoriteTopic implements PreferenceStore.
func (s *FallbackPreferenceStore) AddFavoriteTopic(ctx context.Context, userID, topic string) error {
	err := s.active().AddFavoriteTopic(ctx, userID, topic)
	if err != nil && s.state.trip("add_favorite_topic", err) {
		return s.memory.AddFavoriteTopic(ctx, userID, topic)
	}
	return err
}

// IncrementLearned implements PreferenceStore.
func (s *FallbackPreferenceStore) IncrementLearned(ctx context.Context, userID string) error {
	err := s.active().IncrementLearned(ctx, userID)
	if err != nil && s.state.trip("increment_learned", err) {
		return s.memory.IncrementLearned(ctx, userID)
	}
	return err
}

// Get implements PreferenceStore.
func (s *FallbackPreferenceStore) Get(ctx context.Context, userID string) (Preferences, error) {
	p, err := s.active().Get(ctx, userID)
	if err != nil && s.state.trip("get", err) {
		return s.memory.Get(ctx, userID)
	}
	return p, err
}

// Ping checks the primary store.
func (s *FallbackPreferenceStore) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}
