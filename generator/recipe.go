package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"today_eat_what/llm"
	"today_eat_what/meal"
)

// RecipeSource is one provider in the recipe fallback chain.
//
// Lookup returns ErrSourceUnconfigured (or llm.ErrUnconfigured) to be skipped, a non-transient
// *llm.Error to stop the chain with ErrRecipeUnavailable, and any other error to fall through
// to the next source.
type RecipeSource interface {
	Name() string
	Lookup(ctx context.Context, occ meal.Occasion) (Recipe, error)
}

// RecipeAgent tries its sources in order; first success wins.
type RecipeAgent struct {
	sources []RecipeSource
	logger  *slog.Logger
}

// NewRecipeAgent appends the built-in recipe when the chain does not already end with one, so
// the agent only fails for a misconfigured primary.
func NewRecipeAgent(logger *slog.Logger, sources ...RecipeSource) *RecipeAgent {
	if logger == nil {
		logger = slog.Default()
	}
	chain := make([]RecipeSource, 0, len(sources)+1)
	for _, s := range sources {
		if s != nil {
			chain = append(chain, s)
		}
	}
	if len(chain) == 0 || chain[len(chain)-1].Name() != (BuiltinRecipe{}).Name() {
		chain = append(chain, BuiltinRecipe{})
	}
	return &RecipeAgent{sources: chain, logger: logger.With("component", "recipe")}
}

// Sources lists the chain names in order.
func (a *RecipeAgent) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

func (a *RecipeAgent) Recipe(ctx context.Context, occ meal.Occasion) (Recipe, error) {
	for _, src := range a.sources {
		r, err := src.Lookup(ctx, occ)
		if err == nil {
			r.Source = src.Name()
			r.Occasion = occ
			a.logger.Info("recipe ready", "source", src.Name(), "name", r.Name, "occasion", occ.String())
			return r, nil
		}
		if errors.Is(err, ErrSourceUnconfigured) || errors.Is(err, llm.ErrUnconfigured) {
			a.logger.Debug("recipe source not configured, skipping", "source", src.Name())
			continue
		}
		if ctx.Err() != nil {
			return Recipe{}, fmt.Errorf("%w: %w", ErrRecipeUnavailable, ctx.Err())
		}
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && !llmErr.Transient() {
			// 主模型配置了却鉴权失败，不静默回退，让配置问题暴露出来。
			return Recipe{}, fmt.Errorf("%w: %s: %w", ErrRecipeUnavailable, src.Name(), err)
		}
		a.logger.Warn("recipe source failed, falling back", "source", src.Name(), "error", err)
	}
	return Recipe{}, ErrRecipeUnavailable
}

// ModelRecipeSource is the primary, tool-augmented model call. When Tool is set its answer is
// offered to the model as reference material; a failing tool does not fail the call.
type ModelRecipeSource struct {
	Caller *llm.Caller
	Tool   RecipeSource
	Logger *slog.Logger
}

func (s *ModelRecipeSource) Name() string { return "model" }

func (s *ModelRecipeSource) Lookup(ctx context.Context, occ meal.Occasion) (Recipe, error) {
	if s == nil || !s.Caller.Configured() {
		return Recipe{}, ErrSourceUnconfigured
	}
	var reference *Recipe
	if s.Tool != nil {
		if ref, err := s.Tool.Lookup(ctx, occ); err == nil {
			reference = &ref
		} else if s.Logger != nil && !errors.Is(err, ErrSourceUnconfigured) {
			s.Logger.Debug("recipe tool unavailable for augmentation", "tool", s.Tool.Name(), "error", err)
		}
	}

	raw, err := s.Caller.Call(ctx, "recipe", BuildRecipePrompt(occ, reference))
	if err != nil {
		return Recipe{}, err
	}
	r, ok := parseRecipe(raw, occ)
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %.60q", errUnusableResponse, raw)
	}
	return r, nil
}
