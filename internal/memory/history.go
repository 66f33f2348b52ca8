package memory

import (
	"context"
	"time"
)

// DefaultHistoryTurns is the number of turns kept per user.
const DefaultHistoryTurns = 10

// Role identifies who produced a turn.
type Role string

// Turn roles.
const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn is one message in a user's recent conversation.
type Turn struct {
	Role     Role      `json:"role"`
	Text     string    `json:"text"`
	Category string    `json:"category,omitempty"`
	At       time.Time `json:"at"`
}

// HistoryStore keeps a bounded buffer of recent turns per user.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Append adds a turn, dropping the oldest turns beyond the store's limit.
	Append(ctx context.Context, userID string, turn Turn) error

	// Recent returns up to n of the most recent turns in chronological order.
	Recent(ctx context.Context, userID string, n int) ([]Turn, error)

	// Purge removes the user's history.
	Purge(ctx context.Context, userID string) error

	// Prune drops the history of users idle longer than maxIdle and
	// returns how many users were pruned.
	Prune(ctx context.Context, maxIdle time.Duration) (int, error)
}
