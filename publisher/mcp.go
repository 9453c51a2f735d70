package publisher

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
)

var clientImpl = &mcp.Implementation{Name: "today-eat-what", Version: "0.1.0"}

// MCPTarget publishes a note through a xiaohongshu MCP server.
type MCPTarget struct {
	// Endpoint is the streamable HTTP URL. Ignored when Transport is set.
	Endpoint  string
	Transport mcp.Transport
	Tool      string
}

func (t *MCPTarget) Name() string { return "xiaohongshu" }

func (t *MCPTarget) transport() mcp.Transport {
	if t.Transport != nil {
		return t.Transport
	}
	return &mcp.StreamableClientTransport{Endpoint: t.Endpoint}
}

func (t *MCPTarget) Publish(ctx context.Context, p Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	client := mcp.NewClient(clientImpl, nil)
	session, err := client.Connect(ctx, t.transport(), nil)
	if err != nil {
		return "", &Error{Kind: KindServer, Detail: "connect: " + err.Error(), Err: err}
	}
	defer session.Close()

	tool := t.Tool
	if tool == "" {
		tool = "publish_content"
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: tool,
		Arguments: map[string]any{
			"title":   p.Title,
			"content": p.Body,
			"images":  p.Images,
			"tags":    p.Tags,
		},
	})
	if err != nil {
		return "", &Error{Kind: KindServer, Detail: err.Error(), Err: err}
	}

	text := resultText(res)
	parsed := gjson.Parse(text)
	if res.IsError || (parsed.IsObject() && parsed.Get("success").Exists() && !parsed.Get("success").Bool()) {
		kind := KindServer
		detail := text
		if parsed.IsObject() {
			kind = parseKind(parsed.Get("code").String())
			if msg := parsed.Get("error").String(); msg != "" {
				detail = msg
			}
		}
		return "", &Error{Kind: kind, Detail: detail}
	}

	if parsed.IsObject() {
		for _, key := range []string{"post_id", "note_id", "id"} {
			if id := parsed.Get(key).String(); id != "" {
				return id, nil
			}
		}
	}
	return "xhs-" + uuid.NewString(), nil
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
