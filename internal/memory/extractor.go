package memory

import (
	"regexp"
	"strings"
)

// Extracted is a (topic, fact) pair found in a message.
type Extracted struct {
	Topic string
	Fact  string

	// Preference is set when the statement also expresses a user preference
	// ("my favorite color is blue" → color=blue).
	Preference *PreferenceHint
}

// PreferenceHint is a key/value preference derived from a statement.
type PreferenceHint struct {
	Key   string
	Value string
}

// FactExtractor finds facts worth storing in a teaching message.
type FactExtractor interface {
	Extract(text string) []Extracted
}

var (
	isPattern       = regexp.MustCompile(`(?i)(\w[\w\s]+) is ((?:a |an |the )?[^.!?]+)[.!?]?`)
	favoritePattern = regexp.MustCompile(`(?i)my favou?rite ([\w\s]+?) is ([\w\s]+)`)
	meansPattern    = regexp.MustCompile(`(?i)(\w[\w\s]*) means ([\w\s]+)`)
	teachSplit      = regexp.MustCompile(`(?i)\bthat\b|:`)
	teachTopic      = regexp.MustCompile(`(\w+) is`)
	likePattern     = regexp.MustCompile(`(?i)\bI (?:like|love) ([\w\s]+)`)

	// leadIns are stripped before the "is"/"means" patterns so that
	// "remember that Go is fast" yields topic "go", not the whole phrase.
	leadIns = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:remember that|you should know that|you need to know that|i want you to know that|(?:i want to |let me )?teach you that|learn this:|fact is:?|did you know that)\s+`)
)

// RegexExtractor applies a fixed list of independent regular expressions.
// A message may yield several facts; when two patterns produce the same
// topic the later one wins.
type RegexExtractor struct{}

// Compile-time interface check.
var _ FactExtractor = RegexExtractor{}

// Extract returns the facts found in text, in pattern order.
func (RegexExtractor) Extract(text string) []Extracted {
	var out []Extracted
	index := make(map[string]int)

	add := func(topic, fact string, pref *PreferenceHint) {
		topic = NormalizeTopic(topic)
		fact = strings.TrimSpace(fact)
		if topic == "" || fact == "" {
			return
		}
		e := Extracted{Topic: topic, Fact: fact, Preference: pref}
		if i, ok := index[topic]; ok {
			out[i] = e
			return
		}
		index[topic] = len(out)
		out = append(out, e)
	}

	stripped := leadIns.ReplaceAllString(text, "")

	if m := isPattern.FindStringSubmatch(stripped); m != nil {
		add(m[1], m[2], nil)
	}

	if m := favoritePattern.FindStringSubmatch(text); m != nil {
		key := NormalizeTopic(m[1])
		value := strings.TrimSpace(m[2])
		add("favorite_"+key, value, &PreferenceHint{Key: key, Value: value})
	}

	if m := meansPattern.FindStringSubmatch(stripped); m != nil {
		add(m[1], m[2], nil)
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "teach you") || strings.Contains(lower, "you should know") {
		if parts := teachSplit.Split(text, 3); len(parts) > 1 {
			fact := strings.TrimSpace(parts[1])
			if m := teachTopic.FindStringSubmatch(fact); m != nil {
				add(m[1], fact, nil)
			}
		}
	}

	if m := likePattern.FindStringSubmatch(text); m != nil {
		item := NormalizeTopic(m[1])
		add("likes_"+item, "User likes "+item, nil)
	}

	return out
}

// NopExtractor never extracts anything.
type NopExtractor struct{}

// Compile-time interface check.
var _ FactExtractor = NopExtractor{}

// Extract always returns nil.
func (NopExtractor) Extract(string) []Extracted { return nil }
