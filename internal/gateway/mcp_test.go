package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/mimir/internal/chat"
)

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content %T is not text", res.Content[0])
	}
	return text.Text
}

func TestMCP_Tools(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := newTestGateway(t, chat.Config{})
	var req mcp.CallToolRequest

	res, err := g.teachFact(ctx, req, teachArgs{Topic: "Python", Fact: "a programming language"})
	if err != nil {
		t.Fatalf("teach_fact: %v", err)
	}
	if res.IsError || !strings.HasPrefix(toolText(t, res), "Learned python") {
		t.Errorf("teach_fact = %q", toolText(t, res))
	}

	fact, err := g.engine.Knowledge().Get(ctx, chat.DefaultUserID, "python")
	if err != nil {
		t.Fatalf("fact not stored for default user: %v", err)
	}
	if fact.Category != "programming" {
		t.Errorf("Category = %q, want derived programming", fact.Category)
	}

	res, _ = g.teachFact(ctx, req, teachArgs{Topic: "python", Fact: "a snake too"})
	if !strings.HasPrefix(toolText(t, res), "Updated python") {
		t.Errorf("re-teach = %q", toolText(t, res))
	}

	res, _ = g.recallFact(ctx, req, topicArgs{Topic: "PYTHON"})
	if got := toolText(t, res); got != "python: a snake too" {
		t.Errorf("recall_fact = %q", got)
	}

	res, _ = g.searchKnowledge(ctx, req, searchArgs{Query: "snake"})
	if got := toolText(t, res); got != "1. python: a snake too" {
		t.Errorf("search_knowledge = %q", got)
	}

	res, _ = g.forgetFact(ctx, req, topicArgs{Topic: "python"})
	if res.IsError {
		t.Errorf("forget_fact = %q", toolText(t, res))
	}

	for name, call := range map[string]func() (*mcp.CallToolResult, error){
		"recall missing": func() (*mcp.CallToolResult, error) { return g.recallFact(ctx, req, topicArgs{Topic: "python"}) },
		"forget missing": func() (*mcp.CallToolResult, error) { return g.forgetFact(ctx, req, topicArgs{Topic: "python"}) },
		"teach invalid":  func() (*mcp.CallToolResult, error) { return g.teachFact(ctx, req, teachArgs{Topic: "x"}) },
	} {
		res, err := call()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !res.IsError {
			t.Errorf("%s should be a tool error", name)
		}
	}
}

func TestMCP_ListTools(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, chat.Config{})
	s := g.newMCPServer()

	msg := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, name := range []string{"teach_fact", "recall_fact", "search_knowledge", "forget_fact"} {
		if !strings.Contains(string(out), `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, out)
		}
	}
}
