package chat

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/flemzord/mimir/internal/memory"
)

// Kind identifies which response path produced a reply.
type Kind string

// Reply kinds.
const (
	// KindChat is a templated reply chosen by message category.
	KindChat          Kind = "chat"
	KindLearning      Kind = "learning"
	KindRecall        Kind = "recall"
	KindRecallMiss    Kind = "recall_miss"
	KindKnowledgeList Kind = "knowledge_list"
	KindKnowledge     Kind = "knowledge"
	KindHelp          Kind = "help"
)

// DefaultFollowUpRate is the probability of appending a follow-up question
// to a templated reply.
const DefaultFollowUpRate = 0.7

var templates = map[Category][]string{
	CategoryGreeting: {
		"Hey there! 👋 How's your day going?",
		"Hello! Nice to meet you! What's on your mind?",
		"Hi! I'm here to chat. What would you like to talk about?",
		"Hey! Great to see you. How can I help you today?",
	},
	CategoryQuestion: {
		"That's an interesting question. Let me think...",
		"Hmm, good question! From what I understand...",
		"I've been wondering about that too. Here's what I think...",
		"That's a thoughtful question. In my opinion...",
	},
	CategoryFeeling: {
		"I understand how you feel. That sounds {sentiment}.",
		"I can imagine that must be {sentiment}. Want to talk more about it?",
		"Thanks for sharing that. It sounds {sentiment}.",
		"I appreciate you telling me that. It seems {sentiment}.",
	},
	CategoryCasual: {
		"You know, that reminds me of something interesting...",
		"I was just thinking about that too!",
		"That's really cool! Tell me more.",
		"I love chatting about things like this!",
	},
	CategoryFarewell: {
		"It was great talking with you! Come back anytime 👋",
		"Thanks for the chat! I enjoyed our conversation.",
		"Take care! Hope to talk with you again soon!",
		"Goodbye! Don't be a stranger 😊",
	},
}

var (
	learningTemplates = []string{
		"Thanks for teaching me that! I'll remember it for next time. 📚",
		"That's new information for me! I've added it to my knowledge. 🧠",
		"I didn't know that! Now I've learned something new. Thanks! 🌟",
		"Interesting! I'll store that in my memory for future conversations. 💾",
	}
	recallTemplates = []string{
		"I remember you taught me that {fact}. Is that right?",
		"Based on what you told me earlier, {fact}",
		"You mentioned before that {fact}. Did I remember correctly?",
		"I recall learning from you that {fact}",
	}
	integrationTemplates = []string{
		"That reminds me - you taught me that {topic} is {fact}.",
		"Speaking of {topic}, I remember learning that {fact}.",
		"By the way, about {topic} - you mentioned that {fact}.",
		"I recall our conversation about {topic}. You said {fact}.",
	}
	followUps = []string{
		" What do you think about that?",
		" How does that sound to you?",
		" I'd love to hear your perspective!",
		" What are your thoughts on this?",
	}
)

const (
	emptyKnowledgeText = "I haven't learned anything yet! Teach me something like 'Python is a programming language'"
	helpText           = `🤖 How to use me:
• Teach: "Python is a programming language"
• Ask: "What is python?"
• List: "What do you know?"
• Forget: DELETE /api/knowledge/{user}/{topic}`
)

// DelayProfile turns a reply length into a simulated typing delay:
// clamp(runes * PerChar, Min, Max).
type DelayProfile struct {
	PerChar time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Delay returns the typing delay for text.
func (p DelayProfile) Delay(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * p.PerChar
	return min(max(d, p.Min), p.Max)
}

// Delay profiles per response path.
var (
	ChatDelay        = DelayProfile{PerChar: 50 * time.Millisecond, Min: 1000 * time.Millisecond, Max: 3000 * time.Millisecond}
	LearningDelay    = DelayProfile{PerChar: 40 * time.Millisecond, Min: 1200 * time.Millisecond, Max: 2500 * time.Millisecond}
	RecallDelay      = DelayProfile{PerChar: 35 * time.Millisecond, Min: 1000 * time.Millisecond, Max: 2800 * time.Millisecond}
	IntegrationDelay = DelayProfile{PerChar: 45 * time.Millisecond, Min: 1200 * time.Millisecond, Max: 3000 * time.Millisecond}
)

// Vars are the values substituted into a template.
type Vars struct {
	Topic string
	Fact  string

	// Facts feeds the multi-fact recall and knowledge listing replies.
	Facts []memory.Fact
}

// Composed is a reply text with its typing delay.
type Composed struct {
	Text        string
	TypingDelay time.Duration
}

// Composer picks reply templates. It is safe for concurrent use.
type Composer struct {
	mu           sync.Mutex
	rng          *rand.Rand
	followUpRate float64
}

// NewComposer creates a Composer drawing from rng. A nil rng uses a
// randomly seeded source. followUpRate outside [0, 1] is clamped.
func NewComposer(rng *rand.Rand, followUpRate float64) *Composer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Composer{rng: rng, followUpRate: min(max(followUpRate, 0), 1)}
}

// Chance reports true with probability p.
func (c *Composer) Chance(p float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < p
}

// SetFollowUpRate replaces the follow-up probability, clamped to [0, 1].
func (c *Composer) SetFollowUpRate(r float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.followUpRate = min(max(r, 0), 1)
}

func (c *Composer) drawFollowUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < c.followUpRate
}

func (c *Composer) pick(options []string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return options[c.rng.IntN(len(options))]
}

// Compose builds the reply for a response path.
func (c *Composer) Compose(kind Kind, cls Classification, v Vars) Composed {
	switch kind {
	case KindLearning:
		return composed(c.pick(learningTemplates), LearningDelay)

	case KindRecall:
		if len(v.Facts) > 1 {
			var b strings.Builder
			b.WriteString("I remember you taught me several things:\n")
			for i, f := range v.Facts {
				fmt.Fprintf(&b, "\n%d. %s: %s", i+1, f.Topic, f.Fact)
			}
			return composed(b.String(), RecallDelay)
		}
		fact := v.Fact
		if len(v.Facts) == 1 {
			fact = v.Facts[0].Fact
		}
		return composed(fill(c.pick(recallTemplates), cls, Vars{Topic: v.Topic, Fact: fact}), RecallDelay)

	case KindRecallMiss:
		text := fmt.Sprintf("I don't know about %q yet. Teach me by saying \"%s is ...\"", v.Topic, v.Topic)
		return composed(text, RecallDelay)

	case KindKnowledgeList:
		if len(v.Facts) == 0 {
			return composed(emptyKnowledgeText, RecallDelay)
		}
		var b strings.Builder
		b.WriteString("📚 Here's everything I know:\n")
		for i, f := range v.Facts {
			fmt.Fprintf(&b, "\n%d. %s: %s", i+1, f.Topic, f.Fact)
		}
		return composed(b.String(), RecallDelay)

	case KindKnowledge:
		return composed(fill(c.pick(integrationTemplates), cls, v), IntegrationDelay)

	case KindHelp:
		return composed(helpText, ChatDelay)
	}

	options, ok := templates[cls.Category]
	if !ok {
		options = templates[CategoryCasual]
	}
	text := fill(c.pick(options), cls, v)
	if cls.Category != CategoryFarewell && c.drawFollowUp() {
		text += c.pick(followUps)
	}
	return composed(text, ChatDelay)
}

func composed(text string, p DelayProfile) Composed {
	return Composed{Text: text, TypingDelay: p.Delay(text)}
}

func fill(tmpl string, cls Classification, v Vars) string {
	return strings.NewReplacer(
		"{sentiment}", string(cls.Sentiment),
		"{topic}", v.Topic,
		"{fact}", v.Fact,
	).Replace(tmpl)
}
