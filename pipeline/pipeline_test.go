package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"today_eat_what/cost"
	"today_eat_what/generator"
	"today_eat_what/imagegen"
	"today_eat_what/llm"
	"today_eat_what/meal"
	"today_eat_what/publisher"
)

var dinnerTime = time.Date(2026, 10, 19, 18, 30, 0, 0, time.Local)

var testPrices = map[string]float64{"qwen": 0.01, "deepseek": 0.02, "longcat": 0.005, "doubao": 0.03}

func caller(client llm.Client, vendor string, tracker *cost.Tracker) *llm.Caller {
	return &llm.Caller{
		Client: client,
		Vendor: vendor,
		Policy: llm.Policy{Retries: 1, Backoff: time.Millisecond, Timeout: time.Second},
		Cost:   tracker,
	}
}

func reply(s string) llm.Client {
	return llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) { return s, nil })
}

// copywriter returns a different draft on every call.
func copywriter() llm.Client {
	var n int32
	return llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return "# 下班就做这碗🍜\n五分钟出锅，香到邻居敲门 #快手菜", nil
		}
		return "# 温柔的一碗面🍜\n简单食材也能好好吃饭 #快手菜", nil
	})
}

// auditor fails the first n audits with reason, then passes.
func auditor(n int32, reason string) llm.Client {
	var calls int32
	return llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) {
		if atomic.AddInt32(&calls, 1) <= n {
			return `{"ok": false, "reasons": ["` + reason + `"]}`, nil
		}
		return `{"ok": true, "reasons": []}`, nil
	})
}

type recordingTarget struct {
	calls    int32
	payloads []publisher.Payload
	err      error
}

func (r *recordingTarget) Name() string { return "recording" }

func (r *recordingTarget) Publish(_ context.Context, p publisher.Payload) (string, error) {
	atomic.AddInt32(&r.calls, 1)
	r.payloads = append(r.payloads, p)
	if r.err != nil {
		return "", r.err
	}
	return "note-1", nil
}

type fixture struct {
	tracker *cost.Tracker
	target  *recordingTarget
	images  imagegen.Generator
	recipes *generator.RecipeAgent
	content llm.Client
	audit   llm.Client
	opts    imagegen.Options
}

func newFixture() *fixture {
	return &fixture{
		tracker: cost.NewTracker(testPrices),
		target:  &recordingTarget{},
		images: imagegen.GeneratorFunc(func(context.Context, string, imagegen.Aspect) (string, error) {
			return "https://cdn.example/img.png", nil
		}),
		recipes: generator.NewRecipeAgent(nil, &generator.ModelRecipeSource{}, &generator.MCPRecipeSource{}),
		content: copywriter(),
		audit:   auditor(0, ""),
		opts: imagegen.Options{
			Vendor: "doubao", StepImages: 3, Timeout: time.Second, JoinTimeout: time.Second, Concurrency: 4,
		},
	}
}

func (f *fixture) orchestrator(maxRewrites int) *Orchestrator {
	stages := Stages{
		Recipes: f.recipes,
		Content: generator.NewContentAgent(caller(f.content, "deepseek", f.tracker), generator.DefaultTagRules()),
		Audit:   generator.NewAuditAgent(caller(f.audit, "longcat", f.tracker)),
		Images:  imagegen.NewPipeline(f.images, f.tracker, f.opts, nil),
		Publish: publisher.NewAgent(f.target, publisher.DefaultRules(), time.Second, f.tracker, nil),
	}
	return New(stages, meal.DefaultSchedule(), maxRewrites, f.tracker, nil)
}

func TestRunDinnerWithBuiltinRecipe(t *testing.T) {
	f := newFixture()
	res, err := f.orchestrator(2).Run(context.Background(), dinnerTime)
	require.NoError(t, err)

	assert.Equal(t, meal.Dinner, res.Occasion)
	require.NotNil(t, res.Recipe)
	assert.Equal(t, "builtin", res.Recipe.Source)
	assert.Equal(t, "晚餐活力套餐", res.Recipe.Name)
	assert.Equal(t, "note-1", res.PostID)
	assert.Nil(t, res.Failure)

	require.Len(t, f.target.payloads, 1)
	p := f.target.payloads[0]
	assert.Contains(t, p.Tags, "今日吃什么")
	assert.Contains(t, p.Tags, "快手菜")
	assert.NotContains(t, p.Body, "#")
	assert.Len(t, p.Images, 4)
	assert.Zero(t, p.Placeholders)

	// content + audit + 4 images (+ a zero-priced publish record)
	assert.InDelta(t, 0.02+0.005+4*0.03, res.Cost.Total, 1e-9)
	assert.Equal(t, 7, res.Cost.Calls)
}

func TestRunAuditFailsOnceThenPasses(t *testing.T) {
	f := newFixture()
	f.audit = auditor(1, "off-brand tone")
	res, err := f.orchestrator(2).Run(context.Background(), dinnerTime)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rewrites)
	require.NotNil(t, res.Draft)
	require.NotNil(t, res.Post)
	assert.NotEqual(t, *res.Draft, *res.Post)
	assert.Equal(t, "温柔的一碗面🍜", f.target.payloads[0].Title)
	require.Len(t, res.History, 2)
	assert.Equal(t, []string{"off-brand tone"}, res.History[0].Verdict.Reasons)
}

func TestRunAuditAlwaysFailsIsRejected(t *testing.T) {
	f := newFixture()
	f.audit = auditor(100, "敏感")
	res, err := f.orchestrator(2).Run(context.Background(), dinnerTime)
	require.Error(t, err)

	assert.ErrorIs(t, err, generator.ErrContentRejected)
	assert.Equal(t, StageAudit, StageOf(err))
	assert.Equal(t, 2, res.Rewrites)
	assert.Len(t, res.History, 3)
	assert.Zero(t, atomic.LoadInt32(&f.target.calls))
	require.NotNil(t, res.Failure)
	assert.Equal(t, StageAudit, res.Failure.Stage)
}

func TestRunPublishAuthExpired(t *testing.T) {
	f := newFixture()
	f.target.err = &publisher.Error{Kind: publisher.KindAuthExpired, Detail: "cookie expired"}
	res, err := f.orchestrator(2).Run(context.Background(), dinnerTime)
	require.Error(t, err)

	assert.ErrorIs(t, err, publisher.ErrPublishFailed)
	assert.Equal(t, publisher.KindAuthExpired, publisher.KindOf(err))
	assert.Equal(t, StagePublish, StageOf(err))
	assert.Contains(t, err.Error(), "cookie expired")
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.target.calls))
	assert.Greater(t, res.Cost.Total, 0.0)
	assert.Empty(t, res.PostID)
	require.NotNil(t, res.Payload)
	assert.NotEmpty(t, res.Payload.Title)
}

func TestRunCancelledBeforePublishReportsNoPayload(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.audit = llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) {
		cancel()
		return `{"ok": true, "reasons": []}`, nil
	})
	res, err := f.orchestrator(2).Run(ctx, dinnerTime)
	require.Error(t, err)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StagePublish, StageOf(err))
	assert.Zero(t, atomic.LoadInt32(&f.target.calls))
	assert.NotNil(t, res.Post)
	assert.Nil(t, res.Payload)
	assert.Empty(t, res.Target)
}

func TestRunImagesAlwaysTimeOut(t *testing.T) {
	f := newFixture()
	f.images = imagegen.GeneratorFunc(func(ctx context.Context, _ string, _ imagegen.Aspect) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	f.opts.Timeout = time.Hour
	f.opts.JoinTimeout = 50 * time.Millisecond

	start := time.Now()
	res, err := f.orchestrator(2).Run(context.Background(), dinnerTime)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.NotNil(t, res.Images)
	assert.Equal(t, 4, res.Images.Placeholders())
	p := f.target.payloads[0]
	assert.Equal(t, 4, p.Placeholders)
	for _, uri := range p.Images {
		assert.True(t, strings.HasPrefix(uri, "https://imgs.local/"), uri)
	}
}

func TestRunRecipeUnavailableStops(t *testing.T) {
	f := newFixture()
	denied := llm.ClientFunc(func(context.Context, llm.Prompt, llm.Options) (string, error) {
		return "", &llm.Error{Kind: llm.KindAuth, Vendor: "qwen", Status: 401, Err: errors.New("bad key")}
	})
	f.recipes = generator.NewRecipeAgent(nil, &generator.ModelRecipeSource{Caller: caller(denied, "qwen", f.tracker)})

	res, err := f.orchestrator(2).Run(context.Background(), dinnerTime)
	require.Error(t, err)
	assert.ErrorIs(t, err, generator.ErrRecipeUnavailable)
	assert.Equal(t, StageRecipe, StageOf(err))
	assert.Nil(t, res.Recipe)
	assert.Zero(t, atomic.LoadInt32(&f.target.calls))
	assert.InDelta(t, 0.01, res.Cost.Total, 1e-9)
}

func TestRunCancelsImagesWhenCriticalPathFails(t *testing.T) {
	f := newFixture()
	var cancelled int32
	f.images = imagegen.GeneratorFunc(func(ctx context.Context, _ string, _ imagegen.Aspect) (string, error) {
		<-ctx.Done()
		atomic.AddInt32(&cancelled, 1)
		return "", ctx.Err()
	})
	f.opts.Timeout = time.Hour
	f.opts.JoinTimeout = time.Hour
	f.audit = auditor(100, "敏感")

	o := f.orchestrator(0)
	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), dinnerTime)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, generator.ErrContentRejected)
	case <-time.After(5 * time.Second):
		t.Fatal("run blocked on image requests")
	}
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&cancelled) > 0 }, time.Second, 10*time.Millisecond)
}

func TestRunContentWithoutCredential(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(2)
	o.stages.Content = generator.NewContentAgent(nil, generator.DefaultTagRules())

	_, err := o.Run(context.Background(), dinnerTime)
	assert.ErrorIs(t, err, generator.ErrConfigMissing)
	assert.Equal(t, StageContent, StageOf(err))
}

func TestRunResetsCostBetweenRuns(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(2)
	first, err := o.Run(context.Background(), dinnerTime)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), dinnerTime)
	require.NoError(t, err)
	assert.Equal(t, first.Cost.Calls, second.Cost.Calls)
	assert.NotEqual(t, first.RunID, second.RunID)
}
