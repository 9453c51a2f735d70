package generator

import (
	"context"
	"fmt"

	"today_eat_what/llm"
)

// AuditAgent classifies a post against content-safety and brand-tone rules.
type AuditAgent struct {
	caller *llm.Caller
}

func NewAuditAgent(caller *llm.Caller) *AuditAgent {
	return &AuditAgent{caller: caller}
}

func (a *AuditAgent) Audit(ctx context.Context, p Post) (AuditVerdict, error) {
	if !a.caller.Configured() {
		return AuditVerdict{}, fmt.Errorf("%w: audit model has no credential", ErrConfigMissing)
	}
	raw, err := a.caller.Call(ctx, "audit", BuildAuditPrompt(p))
	if err != nil {
		return AuditVerdict{}, fmt.Errorf("%w: %w", ErrAuditUnavailable, err)
	}
	return parseVerdict(raw), nil
}
