package generator

import (
	"context"

	"today_eat_what/meal"
)

// BuiltinRecipe is the offline fallback. It never fails.
type BuiltinRecipe struct{}

func (BuiltinRecipe) Name() string { return "builtin" }

func (BuiltinRecipe) Lookup(_ context.Context, occ meal.Occasion) (Recipe, error) {
	return Recipe{
		Name:        occ.Label() + "活力套餐",
		Description: "简单易做的家常菜，快速补充能量。",
		Ingredients: []string{"鸡胸肉 150g", "西兰花 1颗", "米饭 1碗", "橄榄油 1勺", "盐、黑胡椒 适量"},
		Steps: []RecipeStep{
			{Order: 1, Instruction: "鸡胸肉切片，撒盐和黑胡椒腌5分钟。"},
			{Order: 2, Instruction: "西兰花切小朵焯水，备用。"},
			{Order: 3, Instruction: "热锅倒油，煎熟鸡胸肉，加入西兰花翻炒。"},
			{Order: 4, Instruction: "盛出搭配米饭，淋少许橄榄油。"},
		},
		Occasion: occ,
	}, nil
}
