package publisher

import (
	"context"

	"github.com/google/uuid"
)

// Target submits a payload and returns the platform post id.
type Target interface {
	Name() string
	Publish(ctx context.Context, p Payload) (string, error)
}

// DryRunTarget accepts every valid payload without contacting anything.
type DryRunTarget struct{}

func (DryRunTarget) Name() string { return "dryrun" }

func (DryRunTarget) Publish(_ context.Context, p Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return "dryrun-" + uuid.NewString(), nil
}
