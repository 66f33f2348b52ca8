package memory

import (
	"strings"
)

// topicCategories maps a category to keywords that place a topic in it.
// Checked in order; the first category with a matching keyword wins.
var topicCategories = []struct {
	name     string
	keywords []string
}{
	{"programming", []string{"javascript", "python", "java", "programming", "code", "algorithm"}},
	{"science", []string{"science", "physics", "chemistry", "biology", "space", "universe"}},
	{"geography", []string{"country", "city", "capital", "location", "map"}},
	{"food", []string{"food", "cuisine", "recipe", "cooking", "restaurant"}},
	{"entertainment", []string{"movie", "music", "game", "book", "artist"}},
	{"personal", []string{"favorite", "like", "love", "hate", "prefer"}},
}

// commonTags are attached to every fact learned from conversation.
var commonTags = []string{"learned", "user-taught", "knowledge"}

// CategorizeTopic returns the category whose keywords appear in topic,
// or DefaultCategory.
func CategorizeTopic(topic string) string {
	topic = strings.ToLower(topic)
	for _, c := range topicCategories {
		for _, kw := range c.keywords {
			if strings.Contains(topic, kw) {
				return c.name
			}
		}
	}
	return DefaultCategory
}

// GenerateTags derives tags from a topic and its fact: the topic itself,
// every word longer than three characters, and the common tags.
func GenerateTags(topic, fact string) []string {
	tags := []string{strings.ToLower(topic)}
	for _, word := range strings.Fields(strings.ToLower(topic + " " + fact)) {
		if len(word) > 3 {
			tags = append(tags, word)
		}
	}
	tags = append(tags, commonTags...)
	return dedupe(tags)
}
