package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/mimir/internal/memory"
)

// recentKnowledgeSize is the number of facts reported in UserStats.RecentKnowledge.
const recentKnowledgeSize = 5

// UserStats summarizes what the bot knows about a user.
type UserStats struct {
	UserID            string            `json:"userId"`
	KnowledgeCount    int               `json:"knowledgeCount"`
	Preferences       map[string]string `json:"preferences"`
	FavoriteTopics    []string          `json:"favoriteTopics"`
	ConversationStyle memory.Style      `json:"conversationStyle"`
	LearnedFacts      int               `json:"learnedFactsCount"`
	TotalMessages     int               `json:"totalMessages"`
	LastActive        *time.Time        `json:"lastActive"`
	RecentKnowledge   []memory.Fact     `json:"recentKnowledge"`
}

// Stats returns the knowledge and activity summary for userID. Users that
// never chatted get zero counters and the default conversation style.
func (e *Engine) Stats(ctx context.Context, userID string) (UserStats, error) {
	n, err := e.cfg.Knowledge.Count(ctx, userID)
	if err != nil {
		return UserStats{}, fmt.Errorf("chat: count knowledge: %w", err)
	}

	facts, err := e.cfg.Knowledge.Recent(ctx, userID, recentKnowledgeSize)
	if err != nil {
		return UserStats{}, fmt.Errorf("chat: recent knowledge: %w", err)
	}
	if facts == nil {
		facts = []memory.Fact{}
	}

	stats := UserStats{
		UserID:            userID,
		KnowledgeCount:    n,
		Preferences:       map[string]string{},
		FavoriteTopics:    []string{},
		ConversationStyle: memory.StyleFriendly,
		RecentKnowledge:   facts,
	}

	p, err := e.cfg.Preferences.Get(ctx, userID)
	switch {
	case errors.Is(err, memory.ErrPreferencesNotFound):
		return stats, nil
	case err != nil:
		return UserStats{}, fmt.Errorf("chat: get preferences: %w", err)
	}

	if p.Values != nil {
		stats.Preferences = p.Values
	}
	if p.FavoriteTopics != nil {
		stats.FavoriteTopics = p.FavoriteTopics
	}
	if p.ConversationStyle != "" {
		stats.ConversationStyle = p.ConversationStyle
	}
	stats.LearnedFacts = p.LearnedFactsCount
	stats.TotalMessages = p.TotalMessages
	if !p.LastActive.IsZero() {
		last := p.LastActive
		stats.LastActive = &last
	}
	return stats, nil
}
