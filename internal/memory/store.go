// Package memory holds the knowledge, preference and conversation history
// stores behind the chat engine, with in-process implementations and the
// degrade-to-memory fallback used when a persistent backend goes away.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// DefaultConfidence is the confidence of a freshly taught fact.
	DefaultConfidence = 1.0

	// ConfidenceStep is added to a fact's confidence each time its topic is re-taught.
	ConfidenceStep = 0.5

	// DefaultCategory is used when a fact is stored without a category.
	DefaultCategory = "general"

	// DefaultSource marks facts taught by the user.
	DefaultSource = "user"

	// DefaultListLimit caps List when the caller passes a non-positive limit.
	DefaultListLimit = 50
)

// Service names under which memory backends publish their stores.
const (
	KnowledgeService   = "memory.knowledge"
	PreferencesService = "memory.preferences"
	HistoryService     = "memory.history"
)

var (
	// ErrFactNotFound indicates the requested fact does not exist.
	ErrFactNotFound = errors.New("memory: fact not found")

	// ErrInvalidFact indicates a fact without a topic or text.
	ErrInvalidFact = errors.New("memory: topic and fact are required")

	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("memory: store unavailable")
)

// Fact is a piece of knowledge a user taught, keyed by (UserID, Topic).
type Fact struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Topic      string    `json:"topic"`
	Fact       string    `json:"fact"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags"`
	Examples   []string  `json:"examples,omitempty"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	UsageCount int       `json:"usageCount"`
	LastUsed   time.Time `json:"lastUsed"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FactInput is the caller-supplied part of a fact for Upsert.
type FactInput struct {
	Topic    string
	Fact     string
	Category string
	Tags     []string
	Examples []string
}

// UpsertResult reports the stored fact and whether an existing topic was updated.
type UpsertResult struct {
	Fact    Fact
	Updated bool
}

// Store manages per-user facts.
// Implementations must be safe for concurrent use and must keep at most one
// fact per (userID, topic).
type Store interface {
	// Upsert inserts a fact or, if the topic already exists for the user,
	// replaces its text and bumps its confidence by ConfidenceStep.
	Upsert(ctx context.Context, userID string, in FactInput) (UpsertResult, error)

	// Get returns the fact for a topic, incrementing its usage count and
	// refreshing LastUsed. Returns ErrFactNotFound if absent.
	Get(ctx context.Context, userID, topic string) (Fact, error)

	// List returns up to limit facts ordered by LastUsed desc, then Confidence desc.
	List(ctx context.Context, userID string, limit int) ([]Fact, error)

	// Recent returns up to limit facts ordered by UpdatedAt desc, then topic.
	Recent(ctx context.Context, userID string, limit int) ([]Fact, error)

	// Search returns facts whose topic, text or tags contain query
	// (case-insensitive), ordered by Confidence desc, then UsageCount desc.
	Search(ctx context.Context, userID, query string) ([]Fact, error)

	// Delete removes a fact. Returns ErrFactNotFound if absent.
	Delete(ctx context.Context, userID, topic string) error

	// Count returns the number of facts stored for a user.
	Count(ctx context.Context, userID string) (int, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// NormalizeTopic lower-cases and trims a topic so it can be used as a key.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// Normalize validates the input and fills defaults. The returned tags always
// contain the category, without duplicates.
func (in FactInput) Normalize() (FactInput, error) {
	out := FactInput{
		Topic:    NormalizeTopic(in.Topic),
		Fact:     strings.TrimSpace(in.Fact),
		Category: strings.ToLower(strings.TrimSpace(in.Category)),
		Examples: in.Examples,
	}
	if out.Topic == "" || out.Fact == "" {
		return FactInput{}, ErrInvalidFact
	}
	if out.Category == "" {
		out.Category = DefaultCategory
	}
	out.Tags = dedupe(append(append([]string(nil), in.Tags...), out.Category))
	return out, nil
}

// Matches reports whether the fact's topic, text or tags contain the
// lower-cased query.
func (f *Fact) Matches(queryLower string) bool {
	if strings.Contains(f.Topic, queryLower) ||
		strings.Contains(strings.ToLower(f.Fact), queryLower) {
		return true
	}
	for _, tag := range f.Tags {
		if strings.Contains(strings.ToLower(tag), queryLower) {
			return true
		}
	}
	return false
}

// UnavailableError wraps a backend failure so that errors.Is(err, ErrUnavailable)
// holds while the original cause stays inspectable.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return "memory: store unavailable: " + e.Op + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Unavailable marks err as a store-unavailable failure of op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
