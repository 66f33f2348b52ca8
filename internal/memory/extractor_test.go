package memory_test

import (
	"testing"

	"github.com/flemzord/mimir/internal/memory"
)

func extractedMap(es []memory.Extracted) map[string]string {
	m := make(map[string]string, len(es))
	for _, e := range es {
		m[e.Topic] = e.Fact
	}
	return m
}

func TestRegexExtractor_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			name: "is statement keeps article",
			text: "Python is a programming language",
			want: map[string]string{"python": "a programming language"},
		},
		{
			name: "trailing punctuation dropped",
			text: "Paris is the capital of France.",
			want: map[string]string{"paris": "the capital of France"},
		},
		{
			name: "lead-in stripped",
			text: "Remember that Go is fast",
			want: map[string]string{"go": "fast"},
		},
		{
			name: "means statement",
			text: "Hola means hello",
			want: map[string]string{"hola": "hello"},
		},
		{
			name: "favorite yields favorite topic",
			text: "my favorite color is blue",
			want: map[string]string{
				"my favorite color": "blue",
				"favorite_color":    "blue",
			},
		},
		{
			name: "like statement",
			text: "I love pizza",
			want: map[string]string{"likes_pizza": "User likes pizza"},
		},
		{
			name: "teaching phrase with that",
			text: "I want to teach you that Rust is safe",
			want: map[string]string{"rust": "Rust is safe"},
		},
		{
			name: "nothing to extract",
			text: "hello there",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := extractedMap(memory.RegexExtractor{}.Extract(tt.text))
			if len(got) != len(tt.want) {
				t.Fatalf("Extract(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for topic, fact := range tt.want {
				if got[topic] != fact {
					t.Errorf("Extract(%q)[%q] = %q, want %q", tt.text, topic, got[topic], fact)
				}
			}
		})
	}
}

func TestRegexExtractor_FavoritePreferenceHint(t *testing.T) {
	t.Parallel()

	for _, e := range (memory.RegexExtractor{}).Extract("My favorite food is sushi") {
		if e.Topic != "favorite_food" {
			continue
		}
		if e.Preference == nil {
			t.Fatal("expected a preference hint")
		}
		if e.Preference.Key != "food" || e.Preference.Value != "sushi" {
			t.Errorf("hint = %+v, want food=sushi", *e.Preference)
		}
		return
	}
	t.Fatal("favorite_food not extracted")
}

func TestNopExtractor(t *testing.T) {
	t.Parallel()

	if got := (memory.NopExtractor{}).Extract("Python is a language"); got != nil {
		t.Errorf("NopExtractor returned %v", got)
	}
}
