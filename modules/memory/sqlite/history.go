package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/flemzord/mimir/internal/memory"
)

const defaultHistoryTurns = memory.DefaultHistoryTurns

// historyStore implements memory.HistoryStore, keeping the last limit
// turns per user.
type historyStore struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

// Append implements memory.HistoryStore.
func (h *historyStore) Append(ctx context.Context, userID string, turn memory.Turn) error {
	if turn.At.IsZero() {
		turn.At = h.now()
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (user_id, seq, role, text, category, at)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM turns WHERE user_id = ?), 0) + 1, ?, ?, ?, ?)`,
		userID, userID, string(turn.Role), turn.Text, turn.Category, toUnix(turn.At),
	); err != nil {
		return fmt.Errorf("sqlite: append turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns
		WHERE user_id = ? AND seq <= (SELECT MAX(seq) FROM turns WHERE user_id = ?) - ?`,
		userID, userID, h.limit,
	); err != nil {
		return fmt.Errorf("sqlite: trim turns: %w", err)
	}

	return tx.Commit()
}

// Recent implements memory.HistoryStore.
func (h *historyStore) Recent(ctx context.Context, userID string, n int) ([]memory.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT role, text, category, at
		FROM turns
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []memory.Turn
	for rows.Next() {
		var (
			t    memory.Turn
			role string
			at   int64
		)
		if err := rows.Scan(&role, &t.Text, &t.Category, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan turn: %w", err)
		}
		t.Role = memory.Role(role)
		t.At = fromUnix(at)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent turns rows: %w", err)
	}

	// Reverse to chronological order.
	slices.Reverse(turns)
	return turns, nil
}

// Purge implements memory.HistoryStore.
func (h *historyStore) Purge(ctx context.Context, userID string) error {
	if _, err := h.db.ExecContext(ctx, "DELETE FROM turns WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("sqlite: purge turns: %w", err)
	}
	return nil
}

// Prune implements memory.HistoryStore.
func (h *historyStore) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := toUnix(h.now().Add(-maxIdle))

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const idle = `SELECT user_id FROM turns GROUP BY user_id HAVING MAX(at) < ?`

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+idle+")", cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count idle users: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE user_id IN ("+idle+")", cutoff); err != nil {
		return 0, fmt.Errorf("sqlite: prune turns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit prune: %w", err)
	}
	return n, nil
}
