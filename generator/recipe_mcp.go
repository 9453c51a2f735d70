package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"today_eat_what/cost"
	"today_eat_what/meal"
)

var clientImpl = &mcp.Implementation{Name: "today-eat-what", Version: "0.1.0"}

// MCPRecipeSource asks a HowToCook-style MCP server for a dish.
type MCPRecipeSource struct {
	// Endpoint is the streamable HTTP URL. Ignored when Transport is set.
	Endpoint  string
	Transport mcp.Transport
	Tool      string
	Timeout   time.Duration
	Cost      *cost.Tracker
}

func (s *MCPRecipeSource) Name() string { return "howtocook" }

func (s *MCPRecipeSource) transport() mcp.Transport {
	if s.Transport != nil {
		return s.Transport
	}
	if s.Endpoint == "" {
		return nil
	}
	return &mcp.StreamableClientTransport{Endpoint: s.Endpoint}
}

func (s *MCPRecipeSource) Lookup(ctx context.Context, occ meal.Occasion) (Recipe, error) {
	if s == nil {
		return Recipe{}, ErrSourceUnconfigured
	}
	transport := s.transport()
	if transport == nil {
		return Recipe{}, ErrSourceUnconfigured
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if s.Cost != nil {
		s.Cost.Charge("recipe", s.Name())
	}

	client := mcp.NewClient(clientImpl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return Recipe{}, fmt.Errorf("%w: connect: %v", ErrToolUnavailable, err)
	}
	defer session.Close()

	tool := s.Tool
	if tool == "" {
		tool = "what_to_eat"
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: map[string]any{"meal_type": occ.Label(), "occasion": occ.String()},
	})
	if err != nil {
		return Recipe{}, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, tool, err)
	}
	text := toolText(res)
	if res.IsError {
		return Recipe{}, fmt.Errorf("%w: %s: %s", ErrToolUnavailable, tool, text)
	}
	r, ok := parseRecipe(text, occ)
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %s returned no recipe", ErrToolUnavailable, tool)
	}
	return r, nil
}

func toolText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
