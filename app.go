package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"today_eat_what/config"
	"today_eat_what/cost"
	"today_eat_what/generator"
	"today_eat_what/imagegen"
	"today_eat_what/llm"
	"today_eat_what/logging"
	"today_eat_what/pipeline"
	"today_eat_what/publisher"
	"today_eat_what/telemetry"
)

// app holds everything a command needs; Close flushes telemetry and the log file.
type app struct {
	cfg          config.Config
	logger       *slog.Logger
	logCloser    io.Closer
	orchestrator *pipeline.Orchestrator
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		Verbose: verbose,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if err := telemetry.Init(ctx, "today-eat-what", telemetry.Options{Enabled: cfg.Telemetry.Enabled, Writer: os.Stderr}); err != nil {
		_ = closer.Close()
		return nil, err
	}

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		telemetry.Shutdown(ctx)
		_ = closer.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, logCloser: closer, orchestrator: orch}, nil
}

func (a *app) Close() {
	telemetry.Shutdown(context.Background())
	_ = a.logCloser.Close()
}

func buildOrchestrator(cfg config.Config, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	schedule, err := cfg.MealSchedule()
	if err != nil {
		return nil, err
	}
	tracker := cost.NewTracker(cfg.Prices)
	tagRules := generator.TagRules{Min: cfg.Pipeline.MinTags, Pad: cfg.Pipeline.PadTags}

	recipeCaller, err := buildCaller("recipe", cfg.Agents.Recipe, cfg.Pipeline, tracker, logger)
	if err != nil {
		return nil, err
	}
	contentCaller, err := buildCaller("content", cfg.Agents.Content, cfg.Pipeline, tracker, logger)
	if err != nil {
		return nil, err
	}
	auditCaller, err := buildCaller("audit", cfg.Agents.Audit, cfg.Pipeline, tracker, logger)
	if err != nil {
		return nil, err
	}

	var tool *generator.MCPRecipeSource
	if cfg.MCP.HowToCookURL != "" {
		tool = &generator.MCPRecipeSource{
			Endpoint: cfg.MCP.HowToCookURL,
			Tool:     cfg.MCP.HowToCookTool,
			Timeout:  cfg.MCP.Timeout,
			Cost:     tracker,
		}
	}
	primary := &generator.ModelRecipeSource{Caller: recipeCaller, Logger: logger}
	if tool != nil {
		primary.Tool = tool
	}
	sources := []generator.RecipeSource{primary}
	if tool != nil {
		sources = append(sources, tool)
	}
	recipes := generator.NewRecipeAgent(logger, sources...)

	gen, err := buildImageGenerator(cfg.Agents.Image, logger)
	if err != nil {
		return nil, err
	}
	images := imagegen.NewPipeline(gen, tracker, imagegen.Options{
		Vendor:      cfg.Agents.Image.Provider,
		StepImages:  cfg.Images.StepImages,
		Timeout:     cfg.Images.Timeout,
		JoinTimeout: cfg.Images.JoinTimeout,
		Concurrency: cfg.Images.Concurrency,
		Aspect:      imagegen.AspectPortrait,
	}, logger)

	rules := publisher.Rules{
		TitleMax:   cfg.Publish.TitleMax,
		DefaultTag: cfg.Publish.DefaultTag,
		Tags:       tagRules,
		DigestMax:  cfg.Publish.DigestMax,
	}
	pub := publisher.NewAgent(buildTarget(cfg), rules, cfg.Publish.Timeout, tracker, logger)

	stages := pipeline.Stages{
		Recipes: recipes,
		Content: generator.NewContentAgent(contentCaller, tagRules),
		Audit:   generator.NewAuditAgent(auditCaller),
		Images:  images,
		Publish: pub,
	}
	logger.Debug("pipeline wired",
		"recipe_sources", recipes.Sources(),
		"content", contentCaller.Configured(),
		"audit", auditCaller.Configured(),
		"images", gen != nil,
		"publish_target", pub.Target(),
	)
	return pipeline.New(stages, schedule, cfg.Pipeline.MaxRewrites, tracker, logger), nil
}

// buildCaller returns nil when the agent has no credential; each agent then takes its
// fallback path (builtin recipe) or fails with ErrConfigMissing (content, audit).
func buildCaller(agent string, m config.ModelConfig, p config.PipelineConfig, tracker *cost.Tracker, logger *slog.Logger) (*llm.Caller, error) {
	settings := m.Settings()
	if !settings.Configured() {
		logger.Warn("model not configured", "agent", agent, "provider", m.Provider)
		return nil, nil
	}
	client, err := llm.New(settings)
	if err != nil {
		return nil, fmt.Errorf("%s model: %w", agent, err)
	}
	return &llm.Caller{
		Client:  client,
		Vendor:  m.Provider,
		Options: m.Options(),
		Policy:  p.Policy(),
		Cost:    tracker,
		Logger:  logger.With("agent", agent),
	}, nil
}

func buildImageGenerator(m config.ModelConfig, logger *slog.Logger) (imagegen.Generator, error) {
	if !m.Settings().Configured() {
		logger.Warn("image model not configured, using placeholders", "provider", m.Provider)
		return nil, nil
	}
	if m.Provider == "mock" {
		return imagegen.GeneratorFunc(func(context.Context, string, imagegen.Aspect) (string, error) {
			return m.Reply, nil
		}), nil
	}
	gen, err := imagegen.NewOpenAIImages(m.Settings())
	if err != nil {
		return nil, fmt.Errorf("image model: %w", err)
	}
	return gen, nil
}

func buildTarget(cfg config.Config) publisher.Target {
	switch cfg.PublishTarget() {
	case "mcp":
		return &publisher.MCPTarget{Endpoint: cfg.MCP.XiaohongshuURL, Tool: cfg.MCP.PublishTool}
	case "http":
		return &publisher.HTTPTarget{
			URL:    cfg.Publish.HTTPURL,
			Token:  cfg.Publish.HTTPToken,
			Client: &http.Client{Timeout: cfg.Publish.Timeout},
		}
	default:
		return publisher.DryRunTarget{}
	}
}
