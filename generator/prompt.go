package generator

import (
	"fmt"
	"strings"

	"today_eat_what/llm"
	"today_eat_what/meal"
)

// BuildRecipePrompt asks for one dish as JSON. reference, when set, is tool data the model may
// adapt.
func BuildRecipePrompt(occ meal.Occasion, reference *Recipe) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("你是美食助理，专注家常菜谱。请输出 JSON 对象 {\"recipe\": {...}}，")
	sb.WriteString("包含 name/description/ingredients(list)/steps(list: {order, instruction})。")
	sb.WriteString("不要输出 JSON 以外的内容。")

	user := fmt.Sprintf("餐次：%s，请给出适合这一餐次的1道菜。", occ.Label())
	if reference != nil {
		user += fmt.Sprintf("\n可参考菜谱工具的结果：%s（%s）；食材：%s。",
			reference.Name, reference.Description, strings.Join(reference.Ingredients, "、"))
	}
	return llm.Prompt{System: sb.String(), User: user}
}

// BuildContentPrompt 生成首稿提示词。
func BuildContentPrompt(r Recipe) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("你是小红书美食创作者，请直接输出 Markdown，不要额外解释。\n")
	sb.WriteString("要求：\n")
	sb.WriteString("- 第一行是一级标题，20字内的吸睛标题，带1个表情。\n")
	sb.WriteString("- 正文包含食材、步骤亮点、口味描述，使用表情符号，控制在180字以内。\n")
	sb.WriteString("- 正文末尾配2-3个话题标签，格式 #标签。\n")

	user := fmt.Sprintf("餐次：%s\n菜名：%s\n菜谱：%s\n主要食材：%s\n步骤：%s",
		r.Occasion.Label(), r.Name, r.Description,
		strings.Join(r.Ingredients, ", "), joinSteps(r.Steps))
	return llm.Prompt{
		System: sb.String(),
		User:   user,
	}
}

// BuildRewritePrompt 生成改写提示词，带上审核不通过的原因。
func BuildRewritePrompt(r Recipe, prev Post, reasons []string) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("你是一名小红书内容编辑，以安全、温和的表达重写文案，避免任何可能违规的描述，保持小红书风格和表情。\n")
	sb.WriteString("- 维持 Markdown 结构，第一行为一级标题。\n")
	sb.WriteString("- 正文末尾保留2-3个话题标签。\n")

	var reasonText string
	if len(reasons) > 0 {
		reasonText = "审核意见：" + strings.Join(reasons, "；")
	} else {
		reasonText = "审核未通过，未给出具体原因。"
	}
	user := fmt.Sprintf("菜名：%s\n原文：\n# %s\n%s\n%s\n\n%s\n请输出修订后的完整 Markdown。",
		r.Name, prev.Title, prev.Body, renderTags(prev.Tags), reasonText)

	return llm.Prompt{System: sb.String(), User: user}
}

// BuildAuditPrompt 审核提示词。
func BuildAuditPrompt(p Post) llm.Prompt {
	return llm.Prompt{
		System: "你是内容安全与品牌风格审核员。审查以下内容是否包含敏感或违规信息、夸大功效或不符合温和友好的品牌语气。" +
			"只返回JSON: {\"ok\": true/false, \"reasons\": []}",
		User: fmt.Sprintf("标题：%s\n正文：%s\n标签：%s", p.Title, p.Body, strings.Join(p.Tags, " ")),
	}
}

func joinSteps(steps []RecipeStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, s.Instruction)
	}
	return strings.Join(parts, " / ")
}

func renderTags(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, "#"+t)
	}
	return strings.Join(parts, " ")
}
