package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"today_eat_what/cost"
	"today_eat_what/generator"
	"today_eat_what/imagegen"
)

// Receipt is the outcome of a publish attempt. Payload is set even when publishing failed.
type Receipt struct {
	Target  string  `json:"target"`
	PostID  string  `json:"post_id,omitempty"`
	Payload Payload `json:"payload"`
}

// Agent builds the payload and submits it exactly once.
type Agent struct {
	target  Target
	rules   Rules
	timeout time.Duration
	cost    *cost.Tracker
	logger  *slog.Logger
}

// NewAgent falls back to DryRunTarget when target is nil.
func NewAgent(target Target, rules Rules, timeout time.Duration, tracker *cost.Tracker, logger *slog.Logger) *Agent {
	if target == nil {
		target = DryRunTarget{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{target: target, rules: rules, timeout: timeout, cost: tracker, logger: logger.With("component", "publisher")}
}

func (a *Agent) Target() string { return a.target.Name() }

// Publish does not retry: a failed attempt is returned with the target's detail.
func (a *Agent) Publish(ctx context.Context, post generator.Post, images imagegen.ImageSet) (Receipt, error) {
	payload := BuildPayload(post, images, a.rules)
	receipt := Receipt{Target: a.target.Name(), Payload: payload}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if a.cost != nil {
		a.cost.Charge("publish", a.target.Name())
	}
	id, err := a.target.Publish(ctx, payload)
	if err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			pe = &Error{Kind: KindServer, Detail: err.Error(), Err: err}
		}
		a.logger.Error("publish failed", "target", a.target.Name(), "kind", pe.Kind, "detail", pe.Detail)
		return receipt, pe
	}
	receipt.PostID = id
	a.logger.Info("published", "target", a.target.Name(), "post_id", id, "images", len(payload.Images), "placeholders", payload.Placeholders)
	return receipt, nil
}
