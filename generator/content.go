package generator

import (
	"context"
	"fmt"

	"today_eat_what/llm"
)

// ContentAgent 负责根据菜谱生成或改写小红书文案。
type ContentAgent struct {
	caller *llm.Caller
	rules  TagRules
}

func NewContentAgent(caller *llm.Caller, rules TagRules) *ContentAgent {
	return &ContentAgent{caller: caller, rules: rules}
}

// Write produces the first draft.
func (a *ContentAgent) Write(ctx context.Context, r Recipe) (Post, error) {
	return a.Generate(ctx, r, nil, nil)
}

// Rewrite regenerates prev, informed by the audit reasons.
func (a *ContentAgent) Rewrite(ctx context.Context, r Recipe, prev Post, reasons []string) (Post, error) {
	return a.Generate(ctx, r, &prev, reasons)
}

// Generate 根据是否存在 prev 决定首稿或改写流程。A failing model call is never replaced by
// mock copy: the audit needs real content.
func (a *ContentAgent) Generate(ctx context.Context, r Recipe, prev *Post, reasons []string) (Post, error) {
	if !a.caller.Configured() {
		return Post{}, fmt.Errorf("%w: content model has no credential", ErrConfigMissing)
	}
	prompt := BuildContentPrompt(r)
	stage := "content"
	if prev != nil {
		prompt = BuildRewritePrompt(r, *prev, reasons)
		stage = "rewrite"
	}

	raw, err := a.caller.Call(ctx, stage, prompt)
	if err != nil {
		return Post{}, fmt.Errorf("%w: %w", ErrContentGenerationFailed, err)
	}
	post, err := PostProcess(raw, a.rules)
	if err != nil {
		return Post{}, fmt.Errorf("%w: %w", ErrContentGenerationFailed, err)
	}
	return post, nil
}
