package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ReviewState is a state of the audit/rewrite loop.
type ReviewState int

const (
	StateAudit ReviewState = iota
	StateRewrite
	StatePassed
	StateFailed
)

func (s ReviewState) String() string {
	switch s {
	case StateAudit:
		return "AUDIT"
	case StateRewrite:
		return "REWRITE"
	case StatePassed:
		return "PASSED"
	case StateFailed:
		return "FAILED_TERMINAL"
	default:
		return fmt.Sprintf("ReviewState(%d)", int(s))
	}
}

// Auditor judges a post.
type Auditor interface {
	Audit(ctx context.Context, p Post) (AuditVerdict, error)
}

// Rewriter regenerates a post from the audit reasons.
type Rewriter interface {
	Rewrite(ctx context.Context, r Recipe, prev Post, reasons []string) (Post, error)
}

// Review 持有一篇稿件的审核/改写上下文。
// It starts in AUDIT and allows at most maxRewrites REWRITE transitions.
type Review struct {
	auditor     Auditor
	rewriter    Rewriter
	recipe      Recipe
	maxRewrites int
	logger      *slog.Logger

	state    ReviewState
	post     Post
	verdict  AuditVerdict
	rewrites int
	history  []Turn
	err      error
}

var errReviewDone = errors.New("review already finished")

// NewReview starts the loop on draft.
func NewReview(a Auditor, w Rewriter, recipe Recipe, draft Post, maxRewrites int, logger *slog.Logger) *Review {
	if maxRewrites < 0 {
		maxRewrites = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Review{
		auditor:     a,
		rewriter:    w,
		recipe:      recipe,
		maxRewrites: maxRewrites,
		logger:      logger.With("component", "review"),
		state:       StateAudit,
		post:        draft,
	}
}

func (r *Review) State() ReviewState { return r.state }

func (r *Review) Post() Post { return r.post }

func (r *Review) Rewrites() int { return r.rewrites }

func (r *Review) Verdict() AuditVerdict { return r.verdict }

func (r *Review) History() []Turn { return append([]Turn(nil), r.history...) }

// Done reports whether a terminal state was reached.
func (r *Review) Done() bool {
	return r.state == StatePassed || r.state == StateFailed
}

// Step performs exactly one transition.
func (r *Review) Step(ctx context.Context) error {
	switch r.state {
	case StateAudit:
		v, err := r.auditor.Audit(ctx, r.post)
		if err != nil {
			return r.fail(err)
		}
		r.verdict = v
		r.appendTurn(v)
		switch {
		case v.Passed:
			r.state = StatePassed
			r.logger.Info("audit passed", "rewrites", r.rewrites)
		case r.rewrites >= r.maxRewrites:
			return r.fail(fmt.Errorf("%w after %d rewrites: %s", ErrContentRejected, r.rewrites, strings.Join(v.Reasons, "; ")))
		default:
			r.state = StateRewrite
			r.logger.Info("audit failed, rewriting", "attempt", r.rewrites+1, "reasons", v.Reasons)
		}
		return nil

	case StateRewrite:
		p, err := r.rewriter.Rewrite(ctx, r.recipe, r.post, r.verdict.Reasons)
		if err != nil {
			return r.fail(err)
		}
		r.rewrites++
		r.post = p
		r.state = StateAudit
		return nil

	default:
		if r.err != nil {
			return r.err
		}
		return errReviewDone
	}
}

// Run steps until PASSED or FAILED_TERMINAL and returns the approved post.
func (r *Review) Run(ctx context.Context) (Post, error) {
	for !r.Done() {
		if err := r.Step(ctx); err != nil {
			return Post{}, err
		}
	}
	if r.state != StatePassed {
		return Post{}, r.err
	}
	return r.post, nil
}

func (r *Review) fail(err error) error {
	r.state = StateFailed
	r.err = err
	return err
}

func (r *Review) appendTurn(v AuditVerdict) {
	summary := "首稿"
	if r.rewrites > 0 {
		summary = fmt.Sprintf("改写%d", r.rewrites)
	}
	r.history = append(r.history, Turn{
		Post:      r.post,
		Verdict:   v,
		Summary:   summary,
		CreatedAt: time.Now(),
	})
}
