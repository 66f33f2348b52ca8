package chat

import (
	"regexp"
	"slices"
	"strings"

	"github.com/flemzord/mimir/internal/memory"
)

var (
	directRecall = regexp.MustCompile(`(?i)^\s*(?:what is|what's|what are|who is|tell me about)\s+(.+?)[\s?.!]*$`)
	knowAbout    = regexp.MustCompile(`(?i)know about ([\w\s]+)`)
	aboutWord    = regexp.MustCompile(`(?i)\babout (\w+)`)
	helpWord     = regexp.MustCompile(`(?i)\bhelp\b`)
)

var recallStopwords = []string{
	"what", "about", "know", "tell", "remember", "that", "this", "with",
	"from", "your", "have", "does", "teach", "taught", "learned", "recall",
	"there", "something", "anything",
}

// RecallTopics returns the topics a recall message may refer to, most
// specific first. primary is the subject of a direct "what is X" or
// "tell me about X" question and is empty for other phrasings.
func RecallTopics(text string) (primary string, candidates []string) {
	add := func(t string) {
		t = memory.NormalizeTopic(t)
		if t != "" && !slices.Contains(candidates, t) {
			candidates = append(candidates, t)
		}
	}

	if m := directRecall.FindStringSubmatch(text); m != nil {
		primary = memory.NormalizeTopic(m[1])
		add(primary)
	}
	if m := knowAbout.FindStringSubmatch(text); m != nil {
		add(m[1])
	}
	if m := aboutWord.FindStringSubmatch(text); m != nil {
		add(m[1])
	}
	for _, w := range Words(text) {
		if len(w) > 3 && !slices.Contains(recallStopwords, w) {
			add(w)
		}
	}
	return primary, candidates
}

// IsHelp reports whether the message asks how to use the bot.
func IsHelp(text string) bool {
	return helpWord.MatchString(text)
}

// KnownTopicsIn returns the topics of facts mentioned in text, as whole
// words or phrases, in the order of facts.
func KnownTopicsIn(text string, facts []memory.Fact) []string {
	padded := " " + strings.Join(Words(text), " ") + " "
	var found []string
	for _, f := range facts {
		if f.Topic == "" || slices.Contains(found, f.Topic) {
			continue
		}
		if strings.Contains(padded, " "+f.Topic+" ") {
			found = append(found, f.Topic)
		}
	}
	return found
}
