package generator

import (
	"time"

	"today_eat_what/meal"
)

// RecipeStep is one numbered cooking instruction.
type RecipeStep struct {
	Order       int    `json:"order"`
	Instruction string `json:"instruction"`
}

// Recipe is produced once per run and never mutated afterwards.
type Recipe struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Ingredients []string      `json:"ingredients"`
	Steps       []RecipeStep  `json:"steps"`
	Occasion    meal.Occasion `json:"occasion"`
	// Source names the provider that produced it (model, tool, builtin).
	Source string `json:"source"`
}

// Post is the social copy: title, body without hashtags, and the ordered unique tag list.
type Post struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// AuditVerdict 审核结果。
type AuditVerdict struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Turn 记录一次审核（以及随后的改写）。
type Turn struct {
	Post      Post         `json:"post"`
	Verdict   AuditVerdict `json:"verdict"`
	Summary   string       `json:"summary"`
	CreatedAt time.Time    `json:"created_at"`
}
