package chat

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/flemzord/mimir/internal/memory"
)

func rate(r float64) *float64 { return &r }

type engineFixture struct {
	engine  *Engine
	store   *memory.InMemoryStore
	prefs   *memory.InMemoryPreferenceStore
	history *memory.InMemoryHistoryStore
}

func newEngineFixture(integration float64) engineFixture {
	f := engineFixture{
		store:   memory.NewInMemoryStore(0),
		prefs:   memory.NewInMemoryPreferenceStore(),
		history: memory.NewInMemoryHistoryStore(memory.DefaultHistoryTurns),
	}
	f.engine = NewEngine(Config{
		Knowledge:       f.store,
		Preferences:     f.prefs,
		History:         f.history,
		Composer:        NewComposer(rand.New(rand.NewPCG(7, 7)), 0),
		IntegrationRate: rate(integration),
		Now:             func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return f
}

func TestEngine_TeachThenRecall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(0)

	r, err := f.engine.Handle(ctx, "u1", "Python is a programming language")
	if err != nil {
		t.Fatalf("teach: %v", err)
	}
	if r.Kind != KindLearning || r.Category != CategoryTeaching {
		t.Fatalf("teach reply = %s/%s, want learning/teaching", r.Kind, r.Category)
	}
	if len(r.Learned) != 1 || r.Learned[0].Topic != "python" || r.Learned[0].Fact != "a programming language" {
		t.Fatalf("Learned = %+v", r.Learned)
	}
	if r.TypingDelay < LearningDelay.Min || r.TypingDelay > LearningDelay.Max {
		t.Errorf("learning delay %v outside bounds", r.TypingDelay)
	}

	r, err = f.engine.Handle(ctx, "u1", "What is python?")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if r.Kind != KindRecall {
		t.Fatalf("recall kind = %s, want recall", r.Kind)
	}
	if !strings.Contains(r.Text, "a programming language") {
		t.Errorf("recall reply %q should embed the fact", r.Text)
	}

	fact, err := f.store.Get(ctx, "u1", "python")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// One usage from the recall, one from this Get.
	if fact.UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2", fact.UsageCount)
	}
}

func TestEngine_ReteachBumpsConfidence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(0)

	for _, msg := range []string{"Go is fast", "Go is simple"} {
		if _, err := f.engine.Handle(ctx, "u1", msg); err != nil {
			t.Fatalf("Handle(%q): %v", msg, err)
		}
	}

	facts, _ := f.store.List(ctx, "u1", 0)
	if len(facts) != 1 {
		t.Fatalf("expected one fact, got %d", len(facts))
	}
	if facts[0].Fact != "simple" {
		t.Errorf("Fact = %q, want simple", facts[0].Fact)
	}
	if facts[0].Confidence <= memory.DefaultConfidence {
		t.Errorf("Confidence = %v, want above %v", facts[0].Confidence, memory.DefaultConfidence)
	}

	p, _ := f.prefs.Get(ctx, "u1")
	if p.LearnedFactsCount != 1 {
		t.Errorf("LearnedFactsCount = %d, want 1", p.LearnedFactsCount)
	}
	if p.TotalMessages != 2 {
		t.Errorf("TotalMessages = %d, want 2", p.TotalMessages)
	}
}

func TestEngine_FavoriteBecomesPreference(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(0)

	if _, err := f.engine.Handle(ctx, "u1", "My favorite color is blue"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	p, err := f.prefs.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get prefs: %v", err)
	}
	if p.Values["color"] != "blue" {
		t.Errorf("color = %q, want blue", p.Values["color"])
	}
	if len(p.FavoriteTopics) != 1 || p.FavoriteTopics[0] != "color" {
		t.Errorf("FavoriteTopics = %v, want [color]", p.FavoriteTopics)
	}
	if _, err := f.store.Get(ctx, "u1", "favorite_color"); err != nil {
		t.Errorf("favorite_color fact: %v", err)
	}
}

func TestEngine_RecallPaths(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(0)

	r, err := f.engine.Handle(ctx, "u1", "What do you know?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Kind != KindKnowledgeList || r.Text != emptyKnowledgeText {
		t.Errorf("empty list reply = %s %q", r.Kind, r.Text)
	}

	r, err = f.engine.Handle(ctx, "u1", "What is elixir?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Kind != KindRecallMiss || !strings.Contains(r.Text, "elixir") {
		t.Errorf("miss reply = %s %q", r.Kind, r.Text)
	}

	for _, msg := range []string{"Go is fast", "Rust is safe"} {
		if _, err := f.engine.Handle(ctx, "u1", msg); err != nil {
			t.Fatalf("Handle(%q): %v", msg, err)
		}
	}

	r, err = f.engine.Handle(ctx, "u1", "What do you know?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Kind != KindKnowledgeList || !strings.Contains(r.Text, "go: fast") || !strings.Contains(r.Text, "rust: safe") {
		t.Errorf("list reply = %s %q", r.Kind, r.Text)
	}

	r, err = f.engine.Handle(ctx, "u1", "do you remember rust")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Kind != KindRecall || len(r.Recalled) != 1 || r.Recalled[0].Topic != "rust" {
		t.Errorf("recall reply = %s %+v", r.Kind, r.Recalled)
	}
}

func TestEngine_KnowledgeIntegration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	always := newEngineFixture(1)
	if _, err := always.engine.Handle(ctx, "u1", "Go is fast"); err != nil {
		t.Fatalf("teach: %v", err)
	}
	r, err := always.engine.Handle(ctx, "u1", "I wrote some go today")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Kind != KindKnowledge || !strings.Contains(r.Text, "fast") {
		t.Errorf("integration reply = %s %q", r.Kind, r.Text)
	}

	never := newEngineFixture(0)
	if _, err := never.engine.Handle(ctx, "u1", "Go is fast"); err != nil {
		t.Fatalf("teach: %v", err)
	}
	r, err = never.engine.Handle(ctx, "u1", "I wrote some go today")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Kind != KindChat {
		t.Errorf("kind = %s, want chat", r.Kind)
	}
}

func TestEngine_EmptyMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(0)

	for _, msg := range []string{"", "   \n\t"} {
		if _, err := f.engine.Handle(ctx, "u1", msg); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Handle(%q) err = %v, want ErrEmptyMessage", msg, err)
		}
	}
	if _, err := f.prefs.Get(ctx, "u1"); !errors.Is(err, memory.ErrPreferencesNotFound) {
		t.Errorf("empty message must not touch the store, got %v", err)
	}
	if n, _ := f.store.Count(ctx, "u1"); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestEngine_DefaultUserAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(0)

	r, err := f.engine.Handle(ctx, "", "hello")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Category != CategoryGreeting || r.Kind != KindChat {
		t.Errorf("reply = %s/%s", r.Category, r.Kind)
	}
	if !r.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", r.Timestamp)
	}

	turns, err := f.engine.History(ctx, DefaultUserID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Role != memory.RoleUser || turns[0].Text != "hello" {
		t.Errorf("turns[0] = %+v", turns[0])
	}
	if turns[1].Role != memory.RoleBot || turns[1].Text != r.Text {
		t.Errorf("turns[1] = %+v", turns[1])
	}
}

func TestEngine_Help(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(0)
	r, err := f.engine.Handle(context.Background(), "u1", "help")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if r.Kind != KindHelp {
		t.Errorf("kind = %s, want help", r.Kind)
	}
}

// failingStore reports every read as a hard failure.
type failingStore struct{ *memory.InMemoryStore }

func (failingStore) List(context.Context, string, int) ([]memory.Fact, error) {
	return nil, errors.New("boom")
}

func TestEngine_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{
		Knowledge:       failingStore{memory.NewInMemoryStore(0)},
		Composer:        NewComposer(rand.New(rand.NewPCG(1, 1)), 0),
		IntegrationRate: rate(1),
	})
	if _, err := e.Handle(context.Background(), "u1", "cool story"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestEngine_Stats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(0)

	stats, err := f.engine.Stats(ctx, "nobody")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.KnowledgeCount != 0 || stats.ConversationStyle != memory.StyleFriendly || stats.LastActive != nil {
		t.Errorf("unknown user stats = %+v", stats)
	}

	for _, msg := range []string{"Go is fast", "Rust is safe", "My favorite food is sushi"} {
		if _, err := f.engine.Handle(ctx, "u1", msg); err != nil {
			t.Fatalf("Handle(%q): %v", msg, err)
		}
	}

	stats, err = f.engine.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", stats.TotalMessages)
	}
	if stats.KnowledgeCount < 3 {
		t.Errorf("KnowledgeCount = %d, want at least 3", stats.KnowledgeCount)
	}
	if stats.Preferences["food"] != "sushi" {
		t.Errorf("food = %q, want sushi", stats.Preferences["food"])
	}
	if len(stats.RecentKnowledge) > recentKnowledgeSize {
		t.Errorf("RecentKnowledge has %d entries", len(stats.RecentKnowledge))
	}
	if stats.LastActive == nil {
		t.Error("LastActive should be set")
	}
}

// updateOrderStore answers Recent with a fixed fact, independent of List order.
type updateOrderStore struct {
	*memory.InMemoryStore
	limit int
}

func (s *updateOrderStore) Recent(_ context.Context, userID string, limit int) ([]memory.Fact, error) {
	s.limit = limit
	return []memory.Fact{{UserID: userID, Topic: "latest", Fact: "just updated"}}, nil
}

func TestEngine_StatsRecentKnowledgeByUpdate(t *testing.T) {
	t.Parallel()

	store := &updateOrderStore{InMemoryStore: memory.NewInMemoryStore(0)}
	e := NewEngine(Config{Knowledge: store})

	stats, err := e.Stats(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if store.limit != recentKnowledgeSize {
		t.Errorf("Recent limit = %d, want %d", store.limit, recentKnowledgeSize)
	}
	if len(stats.RecentKnowledge) != 1 || stats.RecentKnowledge[0].Topic != "latest" {
		t.Errorf("RecentKnowledge = %+v", stats.RecentKnowledge)
	}
}

func TestEngine_Spans(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	engine := NewEngine(Config{
		Composer:       NewComposer(rand.New(rand.NewPCG(1, 1)), 0),
		TracerProvider: tp,
	})

	if _, err := engine.Handle(context.Background(), "u1", "Go is a language"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, err := engine.Handle(context.Background(), "u1", "what is go?"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	names := map[string]int{}
	for _, s := range rec.Ended() {
		names[s.Name()]++
	}
	if names["chat.Handle"] != 2 || names["chat.learn"] != 1 || names["chat.recall"] != 1 {
		t.Errorf("spans = %v", names)
	}
}
