// Package chat turns a user message into a reply: it classifies the text,
// stores taught facts, recalls stored ones and composes a templated answer
// with a simulated typing delay.
package chat

import (
	"regexp"
	"strings"
)

// Category is the coarse kind of a user message.
type Category string

// Message categories.
const (
	CategoryGreeting Category = "greeting"
	CategoryFarewell Category = "farewell"
	CategoryQuestion Category = "question"
	CategoryFeeling  Category = "feeling"
	CategoryTeaching Category = "teaching"
	CategoryRecall   Category = "recall"
	CategoryCasual   Category = "casual"
)

// Sentiment is the polarity of a user message.
type Sentiment string

// Sentiments.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Classification is the result of classifying a message.
type Classification struct {
	Category  Category  `json:"category"`
	Sentiment Sentiment `json:"sentiment"`
}

// Rule assigns Category to messages for which Match returns true.
// Match receives the lower-cased, trimmed message.
type Rule struct {
	Category Category
	Match    func(lower string) bool
}

// PatternRule builds a Rule matching when any of the patterns matches.
func PatternRule(cat Category, patterns ...string) Rule {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return Rule{
		Category: cat,
		Match: func(lower string) bool {
			for _, re := range res {
				if re.MatchString(lower) {
					return true
				}
			}
			return false
		},
	}
}

const (
	greetingWords = `hi|hello|hey|hiya|howdy|yo|namaste|hola|greetings|good (?:morning|afternoon|evening)`
	farewellWords = `bye|goodbye|see you|see ya|farewell|good night|goodnight|gotta go|take care|talk later`
)

var (
	// declarative matches plain "X is Y" and "X means Y" statements.
	declarative = regexp.MustCompile(`^[a-z0-9][\w\s'-]* (?:is|means) \S`)

	// questionLead marks a sentence as a question even without "?".
	questionLead = regexp.MustCompile(`^(?:what|who|whom|whose|where|when|why|how|which|is|are|was|were|do|does|did|can|could|would|should|will|shall|may)\b`)

	// vagueSubject rejects declaratives whose subject is a pronoun or a
	// time reference ("it is raining", "today is rough"). Those are chat,
	// not knowledge.
	vagueSubject = regexp.MustCompile(`^(?:it|this|that|there|here|he|she|they|we|you|i|today|tonight|everything|nothing|life)\b`)

	// smallTalkLead rejects declaratives that open with a greeting or a
	// farewell ("bye this is fun"). Those belong to the later rules.
	smallTalkLead = regexp.MustCompile(`^(?:` + greetingWords + `|` + farewellWords + `)\b`)

	listKnowledge = regexp.MustCompile(`\b(?:what do you know|show (?:me )?(?:your )?knowledge|list (?:your )?knowledge)\b`)
)

// isDeclarative reports whether lower states a fact in "X is Y" form.
func isDeclarative(lower string) bool {
	if strings.Contains(lower, "?") {
		return false
	}
	if questionLead.MatchString(lower) || vagueSubject.MatchString(lower) || smallTalkLead.MatchString(lower) {
		return false
	}
	return declarative.MatchString(lower)
}

// IsListKnowledge reports whether the message asks for everything the bot knows.
// "what do you know about X" is a topic recall, not a listing.
func IsListKnowledge(text string) bool {
	lower := strings.ToLower(text)
	return listKnowledge.MatchString(lower) && !strings.Contains(lower, "know about")
}

// DefaultRules is the rule order used by NewClassifier. The first matching
// rule wins, so the order is the tie-break: teaching, recall, greeting,
// farewell, question, feeling.
func DefaultRules() []Rule {
	teaching := PatternRule(CategoryTeaching,
		`\b(?:remember that|you should know|teach you|learn this|fact is|means that)\b`,
		`\b(?:is called|is known as|is a type of|is part of)\b`,
		`\b(?:my name is|i'm from|i am from|i live in|my favou?rite)\b`,
		`\bdefinition of\b`,
		`\b(?:let me teach|i want you to know|you need to know)\b`,
		`^i (?:really )?(?:like|love) \w`,
	)
	teaching.Match = either(teaching.Match, isDeclarative)

	return []Rule{
		teaching,
		PatternRule(CategoryRecall,
			`\b(?:what did i teach|do you remember|recall that|you learned|what have you learned)\b`,
			`\b(?:tell me what you know about|what do you know about)\b`,
			`^(?:what is|what's|what are|who is|tell me about)\s+\S`,
			listKnowledge.String(),
		),
		PatternRule(CategoryGreeting,
			`^(?:`+greetingWords+`)\b`,
			`\bgood (?:morning|afternoon|evening)\b`,
		),
		PatternRule(CategoryFarewell,
			`\b(?:`+farewellWords+`)\b`,
		),
		PatternRule(CategoryQuestion,
			`\?`,
			questionLead.String(),
		),
		PatternRule(CategoryFeeling,
			`\b(?:i feel|i'm feeling|i am feeling|feeling|i felt|my mood)\b`,
			`\b(?:i am|i'm) (?:so |very |really |a bit |kind of )?(?:happy|sad|angry|excited|worried|anxious|tired|stressed|lonely|bored|upset|great|good|bad|fine|okay|ok)\b`,
		),
	}
}

func either(a, b func(string) bool) func(string) bool {
	return func(s string) bool { return a(s) || b(s) }
}

// Classifier evaluates an ordered rule list against messages.
// It is immutable and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a Classifier over rules, or DefaultRules when rules is empty.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the category of the first matching rule, or
// CategoryCasual, together with the message sentiment.
func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(strings.TrimSpace(text))

	cat := CategoryCasual
	for _, r := range c.rules {
		if r.Match(lower) {
			cat = r.Category
			break
		}
	}
	return Classification{Category: cat, Sentiment: DetectSentiment(lower)}
}

var (
	positiveWords = wordSet("good", "great", "awesome", "amazing", "happy", "excited", "love", "wonderful", "fantastic", "glad")
	negativeWords = wordSet("bad", "terrible", "awful", "sad", "angry", "hate", "worried", "anxious", "upset", "horrible")
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// DetectSentiment counts the positive and negative lexicon words in text.
// Ties, including no lexicon words at all, are neutral.
func DetectSentiment(text string) Sentiment {
	var pos, neg int
	for _, w := range Words(text) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Words splits text into lower-cased words, dropping punctuation
// other than apostrophes, hyphens and underscores inside words.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == '-', r == '_':
			return false
		case r > 127:
			return false
		}
		return true
	})
}
