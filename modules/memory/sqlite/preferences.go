package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/mimir/internal/memory"
)

// preferenceStore implements memory.PreferenceStore.
type preferenceStore struct {
	db  *sql.DB
	now func() time.Time
}

// Touch implements memory.PreferenceStore.
func (s *preferenceStore) Touch(ctx context.Context, userID string) (memory.Preferences, error) {
	now := toUnix(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, style, total_messages, last_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_messages = total_messages + 1,
			last_active    = excluded.last_active,
			updated_at     = excluded.updated_at`,
		userID, string(memory.StyleFriendly), now, now, now,
	)
	if err != nil {
		return memory.Preferences{}, unavailable("touch preferences", err)
	}
	return s.Get(ctx, userID)
}

// SetPreference implements memory.PreferenceStore.
func (s *preferenceStore) SetPreference(ctx context.Context, userID, key, value string) error {
	return s.withUser(ctx, userID, "set preference", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO preference_values (user_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value`,
			userID, key, value,
		)
		return err
	})
}

// AddFavoriteTopic implements memory.PreferenceStore.
func (s *preferenceStore) AddFavoriteTopic(ctx context.Context, userID, topic string) error {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return nil
	}
	return s.withUser(ctx, userID, "add favorite topic", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO favorite_topics (user_id, topic, added_at) VALUES (?, ?, ?)",
			userID, topic, toUnix(s.now()),
		)
		return err
	})
}

// IncrementLearned implements memory.PreferenceStore.
func (s *preferenceStore) IncrementLearned(ctx context.Context, userID string) error {
	now := toUnix(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, style, learned_facts, last_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			learned_facts = learned_facts + 1,
			updated_at    = excluded.updated_at`,
		userID, string(memory.StyleFriendly), now, now, now,
	)
	if err != nil {
		return unavailable("increment learned", err)
	}
	return nil
}

// Get implements memory.PreferenceStore.
func (s *preferenceStore) Get(ctx context.Context, userID string) (memory.Preferences, error) {
	p := memory.Preferences{UserID: userID, Values: map[string]string{}}

	var (
		style                          string
		lastActive, createdAt, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT style, learned_facts, total_messages, last_active, created_at, updated_at
		FROM preferences WHERE user_id = ?`,
		userID,
	).Scan(&style, &p.LearnedFactsCount, &p.TotalMessages, &lastActive, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Preferences{}, memory.ErrPreferencesNotFound
	}
	if err != nil {
		return memory.Preferences{}, unavailable("get preferences", err)
	}
	p.ConversationStyle = memory.Style(style)
	p.LastActive = fromUnix(lastActive)
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updated)

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM preference_values WHERE user_id = ?", userID)
	if err != nil {
		return memory.Preferences{}, unavailable("get preference values", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return memory.Preferences{}, fmt.Errorf("sqlite: scan preference: %w", err)
		}
		p.Values[k] = v
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return memory.Preferences{}, unavailable("read preference values", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT topic FROM favorite_topics WHERE user_id = ? ORDER BY added_at, rowid", userID)
	if err != nil {
		return memory.Preferences{}, unavailable("get favorite topics", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return memory.Preferences{}, fmt.Errorf("sqlite: scan favorite topic: %w", err)
		}
		p.FavoriteTopics = append(p.FavoriteTopics, topic)
	}
	if err := rows.Err(); err != nil {
		return memory.Preferences{}, unavailable("read favorite topics", err)
	}

	return p, nil
}

// Ping implements memory.PreferenceStore.
func (s *preferenceStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// withUser runs fn in a transaction after making sure the user's
// preference row exists, then refreshes its activity timestamps.
func (s *preferenceStore) withUser(ctx context.Context, userID, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toUnix(s.now())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO preferences (user_id, style, last_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			last_active = excluded.last_active,
			updated_at  = excluded.updated_at`,
		userID, string(memory.StyleFriendly), now, now, now,
	); err != nil {
		return unavailable(op, err)
	}

	if err := fn(tx); err != nil {
		return unavailable(op, err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable(op, err)
	}
	return nil
}
