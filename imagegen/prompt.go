package imagegen

import (
	"fmt"

	"today_eat_what/generator"
)

func coverPrompt(r generator.Recipe) string {
	return fmt.Sprintf("小红书风格的美食封面图：%s，%s。明亮自然光，俯拍，竖版构图，不要文字。", r.Name, r.Description)
}

func stepPrompt(r generator.Recipe, s generator.RecipeStep) string {
	return fmt.Sprintf("%s 的制作过程第%d步插画：%s。温暖的家庭厨房风格，竖版构图。", r.Name, s.Order, s.Instruction)
}
