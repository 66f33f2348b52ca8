package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/mimir/internal/memory"
)

const (
	// DefaultUserID is used when a request carries no user identifier.
	DefaultUserID = "default-user"

	// DefaultIntegrationRate is the probability of answering a casual message
	// that mentions a known topic with the stored fact.
	DefaultIntegrationRate = 0.3

	// EmptyMessageText is the chat reply for an empty message.
	EmptyMessageText = "I didn't receive any message. Could you please say something?"

	// ErrorText is the chat reply when a message could not be processed.
	ErrorText = "Sorry, I'm having trouble right now. Please try again!"

	// maxKnowledgeScan bounds the facts considered for listing and topic spotting.
	maxKnowledgeScan = 100
)

// ErrEmptyMessage indicates a message that is empty after trimming.
var ErrEmptyMessage = errors.New("chat: message is required")

const tracerName = "github.com/flemzord/mimir/internal/chat"

// Config holds the dependencies and tuning of an Engine.
type Config struct {
	Knowledge   memory.Store
	Preferences memory.PreferenceStore
	History     memory.HistoryStore
	Extractor   memory.FactExtractor
	Classifier  *Classifier
	Composer    *Composer

	// IntegrationRate is the probability of the knowledge integration reply.
	// Nil means DefaultIntegrationRate.
	IntegrationRate *float64

	// HistoryTurns is the number of turns returned by History. Zero means
	// memory.DefaultHistoryTurns.
	HistoryTurns int

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	Logger *slog.Logger
	Now    func() time.Time
}

// withDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Knowledge == nil {
		c.Knowledge = memory.NewInMemoryStore(memory.DefaultMaxFactsPerUser)
	}
	if c.Preferences == nil {
		c.Preferences = memory.NewInMemoryPreferenceStore()
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = memory.DefaultHistoryTurns
	}
	if c.History == nil {
		c.History = memory.NewInMemoryHistoryStore(c.HistoryTurns)
	}
	if c.Extractor == nil {
		c.Extractor = memory.RegexExtractor{}
	}
	if c.Classifier == nil {
		c.Classifier = NewClassifier()
	}
	if c.Composer == nil {
		c.Composer = NewComposer(nil, DefaultFollowUpRate)
	}
	if c.IntegrationRate == nil {
		r := DefaultIntegrationRate
		c.IntegrationRate = &r
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Reply is the engine's answer to one message.
type Reply struct {
	Text        string        `json:"response"`
	TypingDelay time.Duration `json:"-"`
	Category    Category      `json:"category"`
	Sentiment   Sentiment     `json:"sentiment"`
	Kind        Kind          `json:"kind"`
	Learned     []memory.Fact `json:"learned,omitempty"`
	Recalled    []memory.Fact `json:"recalled,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Engine answers chat messages. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	tracer trace.Tracer
	logger *slog.Logger

	// integrationRate holds math.Float64bits of the current rate.
	integrationRate atomic.Uint64
}

// NewEngine creates an Engine; missing stores default to in-memory ones.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(tracerName),
		logger: cfg.Logger,
	}
	e.integrationRate.Store(math.Float64bits(*cfg.IntegrationRate))
	return e
}

// SetRates changes the knowledge integration and follow-up probabilities
// of a running engine.
func (e *Engine) SetRates(integration, followUp float64) {
	e.integrationRate.Store(math.Float64bits(min(max(integration, 0), 1)))
	e.cfg.Composer.SetFollowUpRate(followUp)
}

// IntegrationRate returns the current knowledge integration probability.
func (e *Engine) IntegrationRate() float64 {
	return math.Float64frombits(e.integrationRate.Load())
}

// Knowledge returns the fact store the engine reads and writes.
func (e *Engine) Knowledge() memory.Store { return e.cfg.Knowledge }

// Preferences returns the preference store.
func (e *Engine) Preferences() memory.PreferenceStore { return e.cfg.Preferences }

// Handle processes one message from userID.
//
// The path taken is, in order: store facts from a teaching message, list
// or recall stored facts, show help, mention a known topic, and finally a
// templated reply for the message category.
func (e *Engine) Handle(ctx context.Context, userID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = DefaultUserID
	}

	ctx, span := e.tracer.Start(ctx, "chat.Handle", trace.WithAttributes(
		attribute.String("chat.user_id", userID),
	))
	defer span.End()

	reply, err := e.handle(ctx, userID, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}

	span.SetAttributes(
		attribute.String("chat.category", string(reply.Category)),
		attribute.String("chat.kind", string(reply.Kind)),
	)
	e.logger.Debug("chat reply",
		"user_id", userID,
		"category", reply.Category,
		"kind", reply.Kind,
	)
	return reply, nil
}

func (e *Engine) handle(ctx context.Context, userID, message string) (Reply, error) {
	if _, err := e.cfg.Preferences.Touch(ctx, userID); err != nil {
		return Reply{}, fmt.Errorf("chat: touch preferences: %w", err)
	}

	cls := e.cfg.Classifier.Classify(message)
	e.remember(ctx, userID, memory.Turn{Role: memory.RoleUser, Text: message, Category: string(cls.Category)})

	reply, err := e.respond(ctx, userID, message, cls)
	if err != nil {
		return Reply{}, err
	}
	reply.Category = cls.Category
	reply.Sentiment = cls.Sentiment
	reply.Timestamp = e.cfg.Now()

	e.remember(ctx, userID, memory.Turn{Role: memory.RoleBot, Text: reply.Text, Category: string(reply.Kind)})
	return reply, nil
}

func (e *Engine) respond(ctx context.Context, userID, message string, cls Classification) (Reply, error) {
	if cls.Category == CategoryTeaching {
		learned, err := e.learn(ctx, userID, message)
		if err != nil {
			return Reply{}, err
		}
		if len(learned) > 0 {
			return e.reply(KindLearning, cls, Vars{}, learned, nil), nil
		}
	}

	if cls.Category == CategoryRecall {
		if IsListKnowledge(message) {
			facts, err := e.cfg.Knowledge.List(ctx, userID, maxKnowledgeScan)
			if err != nil {
				return Reply{}, fmt.Errorf("chat: list knowledge: %w", err)
			}
			return e.reply(KindKnowledgeList, cls, Vars{Facts: facts}, nil, nil), nil
		}

		primary, topics := RecallTopics(message)
		recalled, err := e.recall(ctx, userID, topics)
		if err != nil {
			return Reply{}, err
		}
		if len(recalled) > 0 {
			v := Vars{Topic: recalled[0].Topic, Fact: recalled[0].Fact, Facts: recalled}
			return e.reply(KindRecall, cls, v, nil, recalled), nil
		}
		if primary != "" {
			return e.reply(KindRecallMiss, cls, Vars{Topic: primary}, nil, nil), nil
		}
	}

	if IsHelp(message) {
		return e.reply(KindHelp, cls, Vars{}, nil, nil), nil
	}

	if cls.Category != CategoryFarewell {
		if r, ok, err := e.integrate(ctx, userID, message, cls); err != nil {
			return Reply{}, err
		} else if ok {
			return r, nil
		}
	}

	return e.reply(KindChat, cls, Vars{}, nil, nil), nil
}

func (e *Engine) reply(kind Kind, cls Classification, v Vars, learned, recalled []memory.Fact) Reply {
	c := e.cfg.Composer.Compose(kind, cls, v)
	return Reply{
		Text:        c.Text,
		TypingDelay: c.TypingDelay,
		Kind:        kind,
		Learned:     learned,
		Recalled:    recalled,
	}
}

// learn stores every fact extracted from message and applies preference hints.
func (e *Engine) learn(ctx context.Context, userID, message string) ([]memory.Fact, error) {
	ctx, span := e.tracer.Start(ctx, "chat.learn")
	defer span.End()

	var learned []memory.Fact
	for _, x := range e.cfg.Extractor.Extract(message) {
		res, err := e.cfg.Knowledge.Upsert(ctx, userID, memory.FactInput{
			Topic:    x.Topic,
			Fact:     x.Fact,
			Category: memory.CategorizeTopic(x.Topic),
			Tags:     memory.GenerateTags(x.Topic, x.Fact),
		})
		if err != nil {
			return nil, fmt.Errorf("chat: store fact %q: %w", x.Topic, err)
		}
		if !res.Updated {
			if err := e.cfg.Preferences.IncrementLearned(ctx, userID); err != nil {
				return nil, fmt.Errorf("chat: count learned fact: %w", err)
			}
		}
		if p := x.Preference; p != nil {
			if err := e.cfg.Preferences.SetPreference(ctx, userID, p.Key, p.Value); err != nil {
				return nil, fmt.Errorf("chat: store preference: %w", err)
			}
			if memory.IsFavoriteCategory(p.Key) {
				if err := e.cfg.Preferences.AddFavoriteTopic(ctx, userID, p.Key); err != nil {
					return nil, fmt.Errorf("chat: add favorite topic: %w", err)
				}
			}
		}
		learned = append(learned, res.Fact)
	}

	span.SetAttributes(attribute.Int("chat.learned", len(learned)))
	return learned, nil
}

// recall looks up each candidate topic and returns the facts that exist.
func (e *Engine) recall(ctx context.Context, userID string, topics []string) ([]memory.Fact, error) {
	ctx, span := e.tracer.Start(ctx, "chat.recall")
	defer span.End()

	var found []memory.Fact
	for _, t := range topics {
		f, err := e.cfg.Knowledge.Get(ctx, userID, t)
		switch {
		case errors.Is(err, memory.ErrFactNotFound):
			continue
		case err != nil:
			return nil, fmt.Errorf("chat: recall %q: %w", t, err)
		}
		found = append(found, f)
	}

	span.SetAttributes(attribute.Int("chat.recalled", len(found)))
	return found, nil
}

// integrate answers with a stored fact when the message mentions a known
// topic and the integration draw succeeds.
func (e *Engine) integrate(ctx context.Context, userID, message string, cls Classification) (Reply, bool, error) {
	facts, err := e.cfg.Knowledge.List(ctx, userID, maxKnowledgeScan)
	if err != nil {
		return Reply{}, false, fmt.Errorf("chat: list knowledge: %w", err)
	}
	topics := KnownTopicsIn(message, facts)
	if len(topics) == 0 || !e.cfg.Composer.Chance(e.IntegrationRate()) {
		return Reply{}, false, nil
	}

	f, err := e.cfg.Knowledge.Get(ctx, userID, topics[0])
	if errors.Is(err, memory.ErrFactNotFound) {
		return Reply{}, false, nil
	}
	if err != nil {
		return Reply{}, false, fmt.Errorf("chat: recall %q: %w", topics[0], err)
	}
	r := e.reply(KindKnowledge, cls, Vars{Topic: f.Topic, Fact: f.Fact}, nil, []memory.Fact{f})
	return r, true, nil
}

// remember appends a turn to the history buffer. History is best effort:
// failures are logged and never fail the request.
func (e *Engine) remember(ctx context.Context, userID string, turn memory.Turn) {
	turn.At = e.cfg.Now()
	if err := e.cfg.History.Append(ctx, userID, turn); err != nil {
		e.logger.Warn("chat: history append failed", "user_id", userID, "error", err)
	}
}

// History returns the user's recent turns, oldest first.
func (e *Engine) History(ctx context.Context, userID string) ([]memory.Turn, error) {
	turns, err := e.cfg.History.Recent(ctx, userID, e.cfg.HistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("chat: history: %w", err)
	}
	return turns, nil
}

// HistoryStore returns the history buffer.
func (e *Engine) HistoryStore() memory.HistoryStore { return e.cfg.History }
