package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/mimir/internal/memory"
)

const factColumns = `id, user_id, topic, fact, category, tags, examples, source,
	confidence, usage_count, last_used, created_at, updated_at`

// factStore implements memory.Store. UNIQUE(user_id, topic) plus
// INSERT … ON CONFLICT makes concurrent upserts of one topic atomic.
type factStore struct {
	db  *sql.DB
	now func() time.Time
}

// errCorruptRow marks a row whose JSON columns cannot be decoded.
var errCorruptRow = errors.New("sqlite: corrupt row")

// unavailable wraps a database failure so the fallback store can react to
// it. Cancellation belongs to the caller and a corrupt row is a data
// problem, not a connectivity one; both are passed through unchanged.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errCorruptRow) {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	return memory.Unavailable("sqlite: "+op, err)
}

// Upsert implements memory.Store.
func (s *factStore) Upsert(ctx context.Context, userID string, in memory.FactInput) (memory.UpsertResult, error) {
	in, err := in.Normalize()
	if err != nil {
		return memory.UpsertResult{}, err
	}

	tags, err := json.Marshal(in.Tags)
	if err != nil {
		return memory.UpsertResult{}, fmt.Errorf("sqlite: marshal tags: %w", err)
	}
	examples, err := json.Marshal(nonNil(in.Examples))
	if err != nil {
		return memory.UpsertResult{}, fmt.Errorf("sqlite: marshal examples: %w", err)
	}

	id := uuid.NewString()
	now := toUnix(s.now())

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO facts (id, user_id, topic, fact, category, tags, examples, source,
		                   confidence, usage_count, last_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (user_id, topic) DO UPDATE SET
			fact       = excluded.fact,
			category   = excluded.category,
			tags       = excluded.tags,
			examples   = excluded.examples,
			confidence = facts.confidence + ?,
			updated_at = excluded.updated_at
		RETURNING `+factColumns,
		id, userID, in.Topic, in.Fact, in.Category, string(tags), string(examples), memory.DefaultSource,
		memory.DefaultConfidence, now, now, now,
		memory.ConfidenceStep,
	)

	f, err := scanFact(row)
	if err != nil {
		return memory.UpsertResult{}, unavailable("upsert fact", err)
	}
	return memory.UpsertResult{Fact: f, Updated: f.ID != id}, nil
}

// Get implements memory.Store.
func (s *factStore) Get(ctx context.Context, userID, topic string) (memory.Fact, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE facts SET usage_count = usage_count + 1, last_used = ?
		WHERE user_id = ? AND topic = ?
		RETURNING `+factColumns,
		toUnix(s.now()), userID, memory.NormalizeTopic(topic),
	)

	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Fact{}, memory.ErrFactNotFound
	}
	if err != nil {
		return memory.Fact{}, unavailable("get fact", err)
	}
	return f, nil
}

// List implements memory.Store.
func (s *factStore) List(ctx context.Context, userID string, limit int) ([]memory.Fact, error) {
	if limit <= 0 {
		limit = memory.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+factColumns+`
		FROM facts
		WHERE user_id = ?
		ORDER BY last_used DESC, confidence DESC, topic ASC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, unavailable("list facts", err)
	}
	defer func() { _ = rows.Close() }()

	return scanFacts(rows)
}

// Recent implements memory.Store.
func (s *factStore) Recent(ctx context.Context, userID string, limit int) ([]memory.Fact, error) {
	if limit <= 0 {
		limit = memory.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+factColumns+`
		FROM facts
		WHERE user_id = ?
		ORDER BY updated_at DESC, topic ASC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, unavailable("recent facts", err)
	}
	defer func() { _ = rows.Close() }()

	return scanFacts(rows)
}

// Search implements memory.Store. Matching is a case-insensitive substring
// test on the topic, the fact text and each tag.
func (s *factStore) Search(ctx context.Context, userID, query string) ([]memory.Fact, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+factColumns+`
		FROM facts
		WHERE user_id = ?1
		  AND (topic LIKE ?2 ESCAPE '\'
		       OR lower(fact) LIKE ?2 ESCAPE '\'
		       OR EXISTS (SELECT 1 FROM json_each(facts.tags) t WHERE lower(t.value) LIKE ?2 ESCAPE '\'))
		ORDER BY confidence DESC, usage_count DESC, topic ASC`,
		userID, pattern,
	)
	if err != nil {
		return nil, unavailable("search facts", err)
	}
	defer func() { _ = rows.Close() }()

	return scanFacts(rows)
}

// Delete implements memory.Store.
func (s *factStore) Delete(ctx context.Context, userID, topic string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM facts WHERE user_id = ? AND topic = ?",
		userID, memory.NormalizeTopic(topic),
	)
	if err != nil {
		return unavailable("delete fact", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return memory.ErrFactNotFound
	}

	return nil
}

// Count implements memory.Store.
func (s *factStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, unavailable("count facts", err)
	}
	return n, nil
}

// Ping implements memory.Store.
func (s *factStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanFact(s scanner) (memory.Fact, error) {
	var (
		f                              memory.Fact
		tags, examples                 string
		lastUsed, createdAt, updatedAt int64
	)

	if err := s.Scan(
		&f.ID, &f.UserID, &f.Topic, &f.Fact, &f.Category, &tags, &examples, &f.Source,
		&f.Confidence, &f.UsageCount, &lastUsed, &createdAt, &updatedAt,
	); err != nil {
		return f, err
	}

	if err := json.Unmarshal([]byte(tags), &f.Tags); err != nil {
		return f, fmt.Errorf("%w: fact %s tags: %w", errCorruptRow, f.ID, err)
	}
	if err := json.Unmarshal([]byte(examples), &f.Examples); err != nil {
		return f, fmt.Errorf("%w: fact %s examples: %w", errCorruptRow, f.ID, err)
	}
	if len(f.Examples) == 0 {
		f.Examples = nil
	}

	f.LastUsed = fromUnix(lastUsed)
	f.CreatedAt = fromUnix(createdAt)
	f.UpdatedAt = fromUnix(updatedAt)
	return f, nil
}

func scanFacts(rows *sql.Rows) ([]memory.Fact, error) {
	facts := []memory.Fact{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, unavailable("scan fact", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read facts", err)
	}
	return facts, nil
}

// escapeLike escapes LIKE wildcards so the query matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
