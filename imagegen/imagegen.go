// Package imagegen runs the cover and step illustrations as a side task that is launched
// as soon as the recipe exists and joined right before publishing.
package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"today_eat_what/cost"
	"today_eat_what/generator"
)

// Aspect is the requested aspect ratio.
type Aspect string

const (
	AspectPortrait Aspect = "3:4"
	AspectSquare   Aspect = "1:1"
)

// Generator submits one image request and returns the image reference.
type Generator interface {
	Generate(ctx context.Context, prompt string, aspect Aspect) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, aspect Aspect) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, aspect Aspect) (string, error) {
	return f(ctx, prompt, aspect)
}

// Slot is either a generated reference or a placeholder, never empty.
type Slot struct {
	URI         string `json:"uri"`
	Placeholder bool   `json:"placeholder"`
}

// ImageSet is the resolved result of a Task.
type ImageSet struct {
	Cover Slot   `json:"cover"`
	Steps []Slot `json:"steps"`
}

// URIs lists the cover first, then the steps in order.
func (s ImageSet) URIs() []string {
	out := make([]string, 0, len(s.Steps)+1)
	if s.Cover.URI != "" {
		out = append(out, s.Cover.URI)
	}
	for _, st := range s.Steps {
		out = append(out, st.URI)
	}
	return out
}

// Placeholders counts the slots that did not get a real image.
func (s ImageSet) Placeholders() int {
	n := 0
	if s.Cover.Placeholder {
		n++
	}
	for _, st := range s.Steps {
		if st.Placeholder {
			n++
		}
	}
	return n
}

// CoverPlaceholder 封面占位图地址。
func CoverPlaceholder(recipe string) string {
	return fmt.Sprintf("https://imgs.local/%s_cover.png", url.PathEscape(recipe))
}

// StepPlaceholder 步骤占位图地址，order 为步骤序号。
func StepPlaceholder(recipe string, order int) string {
	return fmt.Sprintf("https://imgs.local/%s_step_%d.png", url.PathEscape(recipe), order)
}

// Options bounds the fan-out.
type Options struct {
	// Vendor is charged once per image request.
	Vendor string
	// StepImages caps the step illustrations; the recipe may have fewer steps.
	StepImages int
	// Timeout bounds each image request.
	Timeout time.Duration
	// JoinTimeout bounds Join, measured from the Join call.
	JoinTimeout time.Duration
	// Concurrency limits in-flight requests; zero means unlimited.
	Concurrency int
	Aspect      Aspect
}

// DefaultOptions matches the config defaults.
func DefaultOptions() Options {
	return Options{
		Vendor:      "doubao",
		StepImages:  3,
		Timeout:     60 * time.Second,
		JoinTimeout: 90 * time.Second,
		Concurrency: 4,
		Aspect:      AspectPortrait,
	}
}

// Pipeline starts image tasks. A nil generator resolves every slot to a placeholder.
type Pipeline struct {
	gen    Generator
	cost   *cost.Tracker
	opts   Options
	logger *slog.Logger
}

func NewPipeline(gen Generator, tracker *cost.Tracker, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Aspect == "" {
		opts.Aspect = AspectPortrait
	}
	return &Pipeline{gen: gen, cost: tracker, opts: opts, logger: logger.With("component", "imagegen")}
}

type request struct {
	index  int // -1 is the cover
	prompt string
}

// Start launches the requests and returns immediately.
func (p *Pipeline) Start(ctx context.Context, r generator.Recipe) *Task {
	ctx, cancel := context.WithCancel(ctx)
	n := len(r.Steps)
	if p.opts.StepImages < n {
		n = max(p.opts.StepImages, 0)
	}
	t := &Task{
		cover:   Slot{URI: CoverPlaceholder(r.Name), Placeholder: true},
		steps:   make([]Slot, n),
		cancel:  cancel,
		done:    make(chan struct{}),
		timeout: p.opts.JoinTimeout,
		logger:  p.logger,
	}
	reqs := []request{{index: -1, prompt: coverPrompt(r)}}
	for i := 0; i < n; i++ {
		t.steps[i] = Slot{URI: StepPlaceholder(r.Name, r.Steps[i].Order), Placeholder: true}
		reqs = append(reqs, request{index: i, prompt: stepPrompt(r, r.Steps[i])})
	}

	if p.gen == nil {
		p.logger.Info("no image generator configured, using placeholders", "recipe", r.Name)
		close(t.done)
		return t
	}

	go func() {
		defer close(t.done)
		var g errgroup.Group
		if p.opts.Concurrency > 0 {
			g.SetLimit(p.opts.Concurrency)
		}
		for _, req := range reqs {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				uri, err := p.generate(ctx, req.prompt)
				if err != nil {
					p.logger.Warn("image request failed, keeping placeholder", "slot", req.index, "err", err)
					return nil
				}
				t.resolve(req.index, uri)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return t
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	if p.cost != nil {
		p.cost.Charge("image", p.opts.Vendor)
	}
	uri, err := p.gen.Generate(ctx, prompt, p.opts.Aspect)
	if err != nil {
		return "", err
	}
	if uri == "" {
		return "", fmt.Errorf("%s returned no image", p.opts.Vendor)
	}
	return uri, nil
}

// Task is the handle of a running fan-out.
type Task struct {
	mu     sync.Mutex
	cover  Slot
	steps  []Slot
	closed bool
	joined *ImageSet

	cancel  context.CancelFunc
	done    chan struct{}
	timeout time.Duration
	logger  *slog.Logger
}

func (t *Task) resolve(index int, uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	s := Slot{URI: uri}
	if index < 0 {
		t.cover = s
	} else {
		t.steps[index] = s
	}
}

// Join waits for every slot to resolve, for the join timeout, or for ctx, whichever comes
// first. Pending requests are cancelled and their slots keep the placeholder. Join is
// idempotent.
func (t *Task) Join(ctx context.Context) ImageSet {
	t.mu.Lock()
	if t.joined != nil {
		defer t.mu.Unlock()
		return *t.joined
	}
	t.mu.Unlock()

	var timer <-chan time.Time
	if t.timeout > 0 {
		tm := time.NewTimer(t.timeout)
		defer tm.Stop()
		timer = tm.C
	}
	select {
	case <-t.done:
	case <-timer:
		t.logger.Warn("image join timed out, filling placeholders", "timeout", t.timeout)
	case <-ctx.Done():
	}
	t.cancel()
	return t.snapshot()
}

// Cancel stops pending requests without waiting; Join afterwards still returns a full set.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once every request has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) snapshot() ImageSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joined == nil {
		t.closed = true
		set := ImageSet{Cover: t.cover, Steps: append([]Slot(nil), t.steps...)}
		t.joined = &set
	}
	return *t.joined
}
