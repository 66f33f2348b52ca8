package memory

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInMemoryHistoryStore_BoundedToLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryHistoryStore(0)

	for i := range 15 {
		if err := s.Append(ctx, "u1", Turn{Role: RoleUser, Text: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != DefaultHistoryTurns {
		t.Fatalf("Recent returned %d turns, want %d", len(got), DefaultHistoryTurns)
	}
	if got[0].Text != "m5" || got[len(got)-1].Text != "m14" {
		t.Errorf("window = %s..%s, want m5..m14", got[0].Text, got[len(got)-1].Text)
	}
	if got[0].At.IsZero() {
		t.Error("Append should stamp turns without a time")
	}
}

func TestInMemoryHistoryStore_Recent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryHistoryStore(5)

	if got, _ := s.Recent(ctx, "nobody", 3); got != nil {
		t.Errorf("Recent(unknown) = %v, want nil", got)
	}

	for _, text := range []string{"a", "b", "c"} {
		_ = s.Append(ctx, "u1", Turn{Role: RoleUser, Text: text})
	}
	got, _ := s.Recent(ctx, "u1", 2)
	if len(got) != 2 || got[0].Text != "b" || got[1].Text != "c" {
		t.Errorf("Recent(2) = %+v, want b, c", got)
	}
	if got, _ := s.Recent(ctx, "u1", 0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
}

func TestInMemoryHistoryStore_PurgeAndPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryHistoryStore(10)
	s.now = func() time.Time { return now }

	_ = s.Append(ctx, "idle", Turn{Role: RoleUser, Text: "x", At: now.Add(-2 * time.Hour)})
	_ = s.Append(ctx, "active", Turn{Role: RoleUser, Text: "y", At: now.Add(-time.Minute)})
	_ = s.Append(ctx, "purged", Turn{Role: RoleUser, Text: "z"})

	if err := s.Purge(ctx, "purged"); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	pruned, err := s.Prune(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if s.Users() != 1 {
		t.Errorf("Users = %d, want 1", s.Users())
	}
	if got, _ := s.Recent(ctx, "active", 10); len(got) != 1 {
		t.Errorf("active history lost: %v", got)
	}
}
