package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrPreferencesNotFound indicates no preference record exists for the user.
var ErrPreferencesNotFound = errors.New("memory: preferences not found")

// Style is the conversation style recorded for a user.
type Style string

// Conversation styles.
const (
	StyleFriendly     Style = "friendly"
	StyleProfessional Style = "professional"
	StyleCasual       Style = "casual"
	StyleHumorous     Style = "humorous"
)

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	switch s {
	case StyleFriendly, StyleProfessional, StyleCasual, StyleHumorous:
		return true
	}
	return false
}

// favoriteCategories are preference keys that also become favorite topics.
var favoriteCategories = []string{"color", "food", "movie", "music", "book"}

// IsFavoriteCategory reports whether key is tracked as a favorite topic.
func IsFavoriteCategory(key string) bool {
	return slices.Contains(favoriteCategories, strings.ToLower(strings.TrimSpace(key)))
}

// Preferences is the per-user record of free-form preferences and activity counters.
type Preferences struct {
	UserID            string            `json:"userId"`
	Values            map[string]string `json:"preferences"`
	FavoriteTopics    []string          `json:"favoriteTopics"`
	ConversationStyle Style             `json:"conversationStyle"`
	LearnedFactsCount int               `json:"learnedFactsCount"`
	TotalMessages     int               `json:"totalMessages"`
	LastActive        time.Time         `json:"lastActive"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// PreferenceStore manages per-user preference records. Every mutating
// operation creates the record on first use.
// Implementations must be safe for concurrent use.
type PreferenceStore interface {
	// Touch records a message: TotalMessages+1 and LastActive=now.
	Touch(ctx context.Context, userID string) (Preferences, error)

	// SetPreference stores a free-form key/value preference.
	SetPreference(ctx context.Context, userID, key, value string) error

	// AddFavoriteTopic adds a lower-cased topic to the favorites set.
	AddFavoriteTopic(ctx context.Context, userID, topic string) error

	// IncrementLearned bumps LearnedFactsCount.
	IncrementLearned(ctx context.Context, userID string) error

	// Get returns the record. Returns ErrPreferencesNotFound if the user was never seen.
	Get(ctx context.Context, userID string) (Preferences, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
