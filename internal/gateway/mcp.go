package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/mimir/internal/chat"
	"github.com/flemzord/mimir/internal/memory"
)

// mcpHandler serves the knowledge tools over the streamable HTTP transport.
func (g *Gateway) mcpHandler() http.Handler {
	return server.NewStreamableHTTPServer(g.newMCPServer())
}

func (g *Gateway) newMCPServer() *server.MCPServer {
	s := server.NewMCPServer("mimir", buildVersion(), server.WithToolCapabilities(false))

	userArg := mcp.WithString("user_id",
		mcp.Description("User whose knowledge is used. Defaults to "+chat.DefaultUserID),
	)

	s.AddTool(mcp.NewTool("teach_fact",
		mcp.WithDescription("Store a fact about a topic, or reinforce it if the topic is already known"),
		userArg,
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic the fact is about")),
		mcp.WithString("fact", mcp.Required(), mcp.Description("What the topic is")),
		mcp.WithString("category", mcp.Description("Category; derived from the topic when omitted")),
	), mcp.NewTypedToolHandler(g.teachFact))

	s.AddTool(mcp.NewTool("recall_fact",
		mcp.WithDescription("Recall the fact stored for a topic"),
		userArg,
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic to recall")),
	), mcp.NewTypedToolHandler(g.recallFact))

	s.AddTool(mcp.NewTool("search_knowledge",
		mcp.WithDescription("Search stored facts by topic, text or tag"),
		userArg,
		mcp.WithString("query", mcp.Required(), mcp.Description("Case-insensitive substring")),
	), mcp.NewTypedToolHandler(g.searchKnowledge))

	s.AddTool(mcp.NewTool("forget_fact",
		mcp.WithDescription("Delete the fact stored for a topic"),
		userArg,
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic to forget")),
	), mcp.NewTypedToolHandler(g.forgetFact))

	return s
}

type teachArgs struct {
	UserID   string `json:"user_id"`
	Topic    string `json:"topic"`
	Fact     string `json:"fact"`
	Category string `json:"category"`
}

type topicArgs struct {
	UserID string `json:"user_id"`
	Topic  string `json:"topic"`
}

type searchArgs struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

func (g *Gateway) teachFact(ctx context.Context, _ mcp.CallToolRequest, args teachArgs) (*mcp.CallToolResult, error) {
	user := toolUser(args.UserID)
	category := args.Category
	if category == "" {
		category = memory.CategorizeTopic(args.Topic)
	}
	res, err := g.engine.Knowledge().Upsert(ctx, user, memory.FactInput{
		Topic:    args.Topic,
		Fact:     args.Fact,
		Category: category,
		Tags:     memory.GenerateTags(args.Topic, args.Fact),
	})
	if errors.Is(err, memory.ErrInvalidFact) {
		return mcp.NewToolResultError("topic and fact are required"), nil
	}
	if err != nil {
		return nil, err
	}
	if !res.Updated {
		if err := g.engine.Preferences().IncrementLearned(ctx, user); err != nil {
			g.logger.Warn("increment learned facts failed", "user_id", user, "error", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Learned %s: %s", res.Fact.Topic, res.Fact.Fact)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Updated %s: %s (confidence %.1f)",
		res.Fact.Topic, res.Fact.Fact, res.Fact.Confidence)), nil
}

func (g *Gateway) recallFact(ctx context.Context, _ mcp.CallToolRequest, args topicArgs) (*mcp.CallToolResult, error) {
	fact, err := g.engine.Knowledge().Get(ctx, toolUser(args.UserID), args.Topic)
	if errors.Is(err, memory.ErrFactNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("nothing is known about %q", args.Topic)), nil
	}
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", fact.Topic, fact.Fact)), nil
}

func (g *Gateway) searchKnowledge(ctx context.Context, _ mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, error) {
	facts, err := g.engine.Knowledge().Search(ctx, toolUser(args.UserID), args.Query)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no facts match %q", args.Query)), nil
	}
	var b strings.Builder
	for i, f := range facts {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, f.Topic, f.Fact)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (g *Gateway) forgetFact(ctx context.Context, _ mcp.CallToolRequest, args topicArgs) (*mcp.CallToolResult, error) {
	err := g.engine.Knowledge().Delete(ctx, toolUser(args.UserID), args.Topic)
	if errors.Is(err, memory.ErrFactNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("nothing is known about %q", args.Topic)), nil
	}
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Forgot %s", memory.NormalizeTopic(args.Topic))), nil
}

func toolUser(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return chat.DefaultUserID
}

// buildVersion reports the main module version embedded by the Go toolchain.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
