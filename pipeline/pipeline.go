// Package pipeline is the stage graph: classify, recipe, then content and the audit/rewrite
// loop on the critical path while images are generated on the side, joined right before
// publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"today_eat_what/cost"
	"today_eat_what/generator"
	"today_eat_what/imagegen"
	"today_eat_what/meal"
	"today_eat_what/publisher"
	"today_eat_what/telemetry"
)

// Stage names a node of the graph.
type Stage string

const (
	StageClassify Stage = "classify"
	StageRecipe   Stage = "recipe"
	StageContent  Stage = "content"
	StageAudit    Stage = "audit"
	StageRewrite  Stage = "rewrite"
	StageImage    Stage = "image"
	StagePublish  Stage = "publish"
)

// StageError is the typed failure of a run: the originating stage and its error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the failing stage of a run error, or "".
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

type RecipeProvider interface {
	Recipe(ctx context.Context, occ meal.Occasion) (generator.Recipe, error)
}

type Writer interface {
	Write(ctx context.Context, r generator.Recipe) (generator.Post, error)
	generator.Rewriter
}

type ImageStarter interface {
	Start(ctx context.Context, r generator.Recipe) *imagegen.Task
}

type Publisher interface {
	Publish(ctx context.Context, p generator.Post, images imagegen.ImageSet) (publisher.Receipt, error)
}

// Stages are the collaborators of a run.
type Stages struct {
	Recipes RecipeProvider
	Content Writer
	Audit   generator.Auditor
	Images  ImageStarter
	Publish Publisher
}

// Result is returned for every run, failed or not, with whatever was produced.
type Result struct {
	RunID     string             `json:"run_id"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Occasion  meal.Occasion      `json:"occasion"`
	Recipe    *generator.Recipe  `json:"recipe,omitempty"`
	Draft     *generator.Post    `json:"draft,omitempty"`
	Post      *generator.Post    `json:"post,omitempty"`
	Rewrites  int                `json:"rewrites"`
	History   []generator.Turn   `json:"history,omitempty"`
	Images    *imagegen.ImageSet `json:"images,omitempty"`
	Payload   *publisher.Payload `json:"payload,omitempty"`
	Target    string             `json:"target,omitempty"`
	PostID    string             `json:"post_id,omitempty"`
	Cost      cost.Summary       `json:"cost"`
	Failure   *Failure           `json:"failure,omitempty"`
}

// Failure is the serialisable form of a StageError.
type Failure struct {
	Stage  Stage  `json:"stage"`
	Detail string `json:"detail"`
}

// Orchestrator runs the graph. One Orchestrator executes one run at a time.
type Orchestrator struct {
	stages      Stages
	schedule    meal.Schedule
	maxRewrites int
	cost        *cost.Tracker
	logger      *slog.Logger
	tracer      trace.Tracer
}

func New(stages Stages, schedule meal.Schedule, maxRewrites int, tracker *cost.Tracker, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = cost.NewTracker(nil)
	}
	return &Orchestrator{
		stages:      stages,
		schedule:    schedule,
		maxRewrites: maxRewrites,
		cost:        tracker,
		logger:      logger.With("component", "pipeline"),
		tracer:      telemetry.Tracer("today_eat_what/pipeline"),
	}
}

// Cost exposes the run ledger.
func (o *Orchestrator) Cost() *cost.Tracker { return o.cost }

// Run executes one run for start. The Result is non-nil even when err is not.
func (o *Orchestrator) Run(ctx context.Context, start time.Time) (res *Result, err error) {
	res = &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := o.logger.With("run_id", res.RunID)
	o.cost.Reset()

	ctx, span := o.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run.id", res.RunID)))
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		res.Cost = o.cost.Summarize()
		span.SetAttributes(attribute.Float64("cost.total", res.Cost.Total))
		if err != nil {
			var se *StageError
			if errors.As(err, &se) {
				res.Failure = &Failure{Stage: se.Stage, Detail: se.Err.Error()}
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("run failed", "err", err, "cost", res.Cost.String())
		} else {
			logger.Info("run finished", "post_id", res.PostID, "cost", res.Cost.String(), "elapsed", res.Duration)
		}
		span.End()
	}()

	res.Occasion = o.schedule.Classify(start)
	o.mark(ctx, StageClassify, attribute.String("meal.occasion", res.Occasion.String()))
	logger.Info("meal classified", "occasion", res.Occasion, "at", start.Format("15:04"))

	var recipe generator.Recipe
	if err := o.stage(ctx, StageRecipe, func(ctx context.Context) error {
		var err error
		recipe, err = o.stages.Recipes.Recipe(ctx, res.Occasion)
		return err
	}); err != nil {
		return res, err
	}
	res.Recipe = &recipe
	logger.Info("recipe ready", "name", recipe.Name, "source", recipe.Source, "steps", len(recipe.Steps))

	var task *imagegen.Task
	if o.stages.Images != nil {
		task = o.stages.Images.Start(ctx, recipe)
		defer func() {
			if err != nil {
				task.Cancel()
			}
		}()
	}

	var draft generator.Post
	if err := o.stage(ctx, StageContent, func(ctx context.Context) error {
		var err error
		draft, err = o.stages.Content.Write(ctx, recipe)
		return err
	}); err != nil {
		return res, err
	}
	res.Draft = &draft

	review := generator.NewReview(o.stages.Audit, o.stages.Content, recipe, draft, o.maxRewrites, logger)
	var post generator.Post
	reviewErr := o.stage(ctx, StageAudit, func(ctx context.Context) error {
		var err error
		post, err = review.Run(ctx)
		return err
	})
	res.Rewrites = review.Rewrites()
	res.History = review.History()
	if reviewErr != nil {
		var se *StageError
		if errors.As(reviewErr, &se) && errors.Is(se.Err, generator.ErrContentGenerationFailed) {
			se.Stage = StageRewrite
		}
		return res, reviewErr
	}
	res.Post = &post

	images := imagegen.ImageSet{}
	if task != nil {
		_ = o.stage(ctx, StageImage, func(ctx context.Context) error {
			images = task.Join(ctx)
			return nil
		})
	}
	res.Images = &images
	if n := images.Placeholders(); n > 0 {
		logger.Warn("publishing with placeholder images", "placeholders", n)
	}

	var (
		receipt   publisher.Receipt
		attempted bool
	)
	pubErr := o.stage(ctx, StagePublish, func(ctx context.Context) error {
		var err error
		attempted = true
		receipt, err = o.stages.Publish.Publish(ctx, post, images)
		return err
	})
	if attempted && receipt.Payload.Title != "" {
		res.Payload = &receipt.Payload
	}
	res.Target = receipt.Target
	if pubErr != nil {
		return res, pubErr
	}
	res.PostID = receipt.PostID
	return res, nil
}

// stage runs fn under a span and wraps its error with the stage name.
func (o *Orchestrator) stage(ctx context.Context, s Stage, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "stage."+string(s))
	defer span.End()
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: s, Err: err}
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: s, Err: err}
	}
	return nil
}

// mark records an instantaneous stage.
func (o *Orchestrator) mark(ctx context.Context, s Stage, attrs ...attribute.KeyValue) {
	_, span := o.tracer.Start(ctx, "stage."+string(s), trace.WithAttributes(attrs...))
	span.End()
}
