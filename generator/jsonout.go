package generator

import (
	"strings"

	"github.com/tidwall/gjson"

	"today_eat_what/meal"
)

// extractJSON finds the outermost JSON object in model output that may carry prose or code
// fences around it.
func extractJSON(raw string) (gjson.Result, bool) {
	raw = strings.TrimSpace(raw)
	if gjson.Valid(raw) {
		r := gjson.Parse(raw)
		return r, r.IsObject()
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	candidate := raw[start : end+1]
	if !gjson.Valid(candidate) {
		return gjson.Result{}, false
	}
	return gjson.Parse(candidate), true
}

// parseRecipe reads {"recipe": {...}} or a bare recipe object. Missing fields get the same
// neutral defaults the built-in path uses; a missing name with no steps is unusable.
func parseRecipe(raw string, occ meal.Occasion) (Recipe, bool) {
	root, ok := extractJSON(raw)
	if !ok {
		return Recipe{}, false
	}
	r := root
	if nested := root.Get("recipe"); nested.IsObject() {
		r = nested
	}
	name := strings.TrimSpace(r.Get("name").String())
	stepsRaw := r.Get("steps").Array()
	if name == "" && len(stepsRaw) == 0 {
		return Recipe{}, false
	}

	rec := Recipe{
		Name:        name,
		Description: strings.TrimSpace(r.Get("description").String()),
		Occasion:    occ,
	}
	for _, ing := range r.Get("ingredients").Array() {
		if s := strings.TrimSpace(ing.String()); s != "" {
			rec.Ingredients = append(rec.Ingredients, s)
		}
	}
	for i, st := range stepsRaw {
		step := RecipeStep{Order: i + 1}
		if st.IsObject() {
			if o := st.Get("order"); o.Exists() && o.Int() > 0 {
				step.Order = int(o.Int())
			}
			step.Instruction = strings.TrimSpace(st.Get("instruction").String())
		} else {
			step.Instruction = strings.TrimSpace(st.String())
		}
		if step.Instruction != "" {
			rec.Steps = append(rec.Steps, step)
		}
	}
	return fillRecipeDefaults(rec), true
}

func fillRecipeDefaults(r Recipe) Recipe {
	if r.Name == "" {
		r.Name = r.Occasion.Label() + "推荐"
	}
	if r.Description == "" {
		r.Description = "轻松上手的美味搭配"
	}
	if len(r.Ingredients) == 0 {
		r.Ingredients = []string{"根据口味准备常用食材"}
	}
	if len(r.Steps) == 0 {
		r.Steps = []RecipeStep{{Order: 1, Instruction: "按常规方法烹饪至熟。"}}
	}
	return r
}

// parseVerdict reads {"ok": bool, "reasons": [...]}. Anything unreadable fails closed.
func parseVerdict(raw string) AuditVerdict {
	root, ok := extractJSON(raw)
	if !ok {
		return AuditVerdict{Passed: false, Reasons: []string{"unparseable audit verdict"}}
	}
	okField := root.Get("ok")
	if !okField.Exists() {
		okField = root.Get("passed")
	}
	if !okField.Exists() || (okField.Type != gjson.True && okField.Type != gjson.False) {
		return AuditVerdict{Passed: false, Reasons: []string{"unparseable audit verdict"}}
	}
	v := AuditVerdict{Passed: okField.Bool()}
	for _, r := range root.Get("reasons").Array() {
		if s := strings.TrimSpace(r.String()); s != "" {
			v.Reasons = append(v.Reasons, s)
		}
	}
	return v
}
