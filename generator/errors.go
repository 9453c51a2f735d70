package generator

import "errors"

var (
	// ErrRecipeUnavailable: the configured primary endpoint failed non-transiently.
	ErrRecipeUnavailable = errors.New("recipe unavailable")
	// ErrContentGenerationFailed: the content model call failed after retries.
	ErrContentGenerationFailed = errors.New("content generation failed")
	// ErrContentRejected: the rewrite budget ran out with the audit still failing.
	ErrContentRejected = errors.New("content rejected")
	// ErrConfigMissing: an agent without a fallback has no credential.
	ErrConfigMissing = errors.New("config missing")
	// ErrAuditUnavailable: the audit model call failed after retries.
	ErrAuditUnavailable = errors.New("audit unavailable")
	// ErrToolUnavailable: the secondary recipe tool could not answer.
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrSourceUnconfigured marks a recipe source that should be skipped.
	ErrSourceUnconfigured = errors.New("recipe source not configured")

	errUnusableResponse = errors.New("model response is not a usable recipe")
)
