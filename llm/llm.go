// Package llm is the model-client capability every agent submits prompts through.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client 抽象大模型客户端，便于替换/Mock。
type Client interface {
	Complete(ctx context.Context, prompt Prompt, opts Options) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt Prompt, opts Options) (string, error)

func (f ClientFunc) Complete(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System  string
	User    string
	History []Message
}

// Message 用于少量历史（可选）。
type Message struct {
	Role    string
	Content string
}

// Options are per-call knobs. Zero values mean provider defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Settings 提供给具体实现的基础配置。
type Settings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Reply is the canned answer of the mock provider.
	Reply string
}

// Configured reports whether a credential is present; mock needs none.
func (s Settings) Configured() bool {
	if strings.EqualFold(s.Provider, "mock") {
		return true
	}
	return s.Provider != "" && s.APIKey != ""
}

// New builds the client for s.Provider. Every OpenAI-compatible vendor goes through the
// openai SDK with a base URL; only "openai" itself may omit it.
func New(s Settings) (Client, error) {
	switch strings.ToLower(s.Provider) {
	case "mock":
		return Mock{Reply: s.Reply}, nil
	case "anthropic", "claude":
		return NewAnthropic(s)
	case "openai":
		return NewOpenAI(s)
	case "qwen", "deepseek", "longcat", "glm", "doubao", "siliconflow":
		// 兼容 OpenAI 接口的厂商必须提供 base_url。
		if s.BaseURL == "" {
			return nil, fmt.Errorf("llm provider %s requires base_url (OpenAI-compatible endpoint)", s.Provider)
		}
		return NewOpenAI(s)
	case "":
		return nil, ErrUnconfigured
	default:
		return nil, fmt.Errorf("llm provider %s not supported", s.Provider)
	}
}
