package generator

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"today_eat_what/cost"
	"today_eat_what/llm"
	"today_eat_what/meal"
)

const recipeJSON = `{"recipe": {"name": "葱油拌面", "description": "十分钟出锅", "ingredients": ["面条", "小葱"],
"steps": [{"order": 1, "instruction": "熬葱油"}, {"order": 2, "instruction": "拌面"}]}}`

func testCaller(client llm.Client, vendor string, tracker *cost.Tracker) *llm.Caller {
	return &llm.Caller{
		Client: client,
		Vendor: vendor,
		Policy: llm.Policy{Retries: 2, Backoff: time.Millisecond, Timeout: time.Second},
		Cost:   tracker,
	}
}

func reply(s string) llm.Client {
	return llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) { return s, nil })
}

func TestRecipeAgentPrimarySucceeds(t *testing.T) {
	tracker := cost.NewTracker(map[string]float64{"qwen": 0.01})
	agent := NewRecipeAgent(nil, &ModelRecipeSource{Caller: testCaller(reply(recipeJSON), "qwen", tracker)})

	r, err := agent.Recipe(context.Background(), meal.Lunch)
	require.NoError(t, err)
	assert.Equal(t, "葱油拌面", r.Name)
	assert.Equal(t, "model", r.Source)
	assert.Equal(t, meal.Lunch, r.Occasion)
	assert.InDelta(t, 0.01, tracker.Total(), 1e-9)
}

func TestRecipeAgentNothingConfiguredUsesBuiltin(t *testing.T) {
	agent := NewRecipeAgent(nil, &ModelRecipeSource{}, &MCPRecipeSource{})
	assert.Equal(t, []string{"model", "howtocook", "builtin"}, agent.Sources())

	r, err := agent.Recipe(context.Background(), meal.Dinner)
	require.NoError(t, err)
	assert.Equal(t, "builtin", r.Source)
	assert.Equal(t, "晚餐活力套餐", r.Name)
	assert.Len(t, r.Steps, 4)
}

func TestRecipeAgentTransientExhaustionFallsBack(t *testing.T) {
	var calls int32
	failing := llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", &llm.Error{Kind: llm.KindServer, Vendor: "qwen", Status: 503, Err: errors.New("unavailable")}
	})
	agent := NewRecipeAgent(nil, &ModelRecipeSource{Caller: testCaller(failing, "qwen", nil)})

	r, err := agent.Recipe(context.Background(), meal.Breakfast)
	require.NoError(t, err)
	assert.Equal(t, "builtin", r.Source)
	assert.EqualValues(t, 3, calls)
}

func TestRecipeAgentAuthErrorSurfaces(t *testing.T) {
	denied := llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) {
		return "", &llm.Error{Kind: llm.KindAuth, Vendor: "qwen", Status: 401, Err: errors.New("bad key")}
	})
	agent := NewRecipeAgent(nil, &ModelRecipeSource{Caller: testCaller(denied, "qwen", nil)})

	_, err := agent.Recipe(context.Background(), meal.Dinner)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecipeUnavailable)
	assert.True(t, llm.IsAuth(err))
}

func TestRecipeAgentNonJSONFallsThrough(t *testing.T) {
	agent := NewRecipeAgent(nil,
		&ModelRecipeSource{Caller: testCaller(reply("今天就吃面吧"), "qwen", nil)},
		stubSource{name: "tool", recipe: Recipe{Name: "工具菜"}},
	)
	r, err := agent.Recipe(context.Background(), meal.Lunch)
	require.NoError(t, err)
	assert.Equal(t, "tool", r.Source)
	assert.Equal(t, "工具菜", r.Name)
}

func TestModelSourceReceivesToolReference(t *testing.T) {
	var got llm.Prompt
	client := llm.ClientFunc(func(_ context.Context, p llm.Prompt, _ llm.Options) (string, error) {
		got = p
		return recipeJSON, nil
	})
	src := &ModelRecipeSource{
		Caller: testCaller(client, "qwen", nil),
		Tool:   stubSource{name: "tool", recipe: Recipe{Name: "清蒸鲈鱼", Description: "鲜嫩"}},
	}
	_, err := src.Lookup(context.Background(), meal.Dinner)
	require.NoError(t, err)
	assert.Contains(t, got.User, "清蒸鲈鱼")
	assert.Contains(t, got.User, "晚餐")
}

type stubSource struct {
	name   string
	recipe Recipe
	err    error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Lookup(context.Context, meal.Occasion) (Recipe, error) {
	return s.recipe, s.err
}

func mcpRecipeTransport(t *testing.T, handler mcp.ToolHandler) mcp.Transport {
	t.Helper()
	srv := mcp.NewServer(&mcp.Implementation{Name: "howtocook-test", Version: "0.1.0"}, nil)
	srv.AddTool(&mcp.Tool{
		Name:        "what_to_eat",
		Description: "Recommend a dish for a meal",
		InputSchema: map[string]any{"type": "object"},
	}, handler)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx, serverT) }()
	return clientT
}

func TestMCPRecipeSource(t *testing.T) {
	var gotMeal string
	transport := mcpRecipeTransport(t, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]string
		_ = json.Unmarshal(req.Params.Arguments, &args)
		gotMeal = args["meal_type"]
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: recipeJSON}}}, nil
	})
	tracker := cost.NewTracker(map[string]float64{"howtocook": 0.001})
	src := &MCPRecipeSource{Transport: transport, Cost: tracker, Timeout: 5 * time.Second}

	r, err := src.Lookup(context.Background(), meal.Lunch)
	require.NoError(t, err)
	assert.Equal(t, "葱油拌面", r.Name)
	assert.Equal(t, "午餐", gotMeal)
	assert.Len(t, tracker.Records(), 1)
}

func TestMCPRecipeSourceToolError(t *testing.T) {
	transport := mcpRecipeTransport(t, func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: "index offline"}}}
		return res, nil
	})
	src := &MCPRecipeSource{Transport: transport}

	_, err := src.Lookup(context.Background(), meal.Lunch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolUnavailable)

	agent := NewRecipeAgent(nil, &ModelRecipeSource{}, &MCPRecipeSource{Transport: mcpRecipeTransport(t,
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: "down"}}}, nil
		})})
	r, err := agent.Recipe(context.Background(), meal.Lunch)
	require.NoError(t, err)
	assert.Equal(t, "builtin", r.Source)
}
