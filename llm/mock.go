package llm

import (
	"context"
	"strings"
)

// Mock 一个简单的占位实现，便于本地调试，不调用外部模型。
// It answers Reply when set, otherwise echoes the user prompt as Markdown.
type Mock struct {
	Reply string
}

func (m Mock) Complete(_ context.Context, prompt Prompt, _ Options) (string, error) {
	if m.Reply != "" {
		return m.Reply, nil
	}
	var sb strings.Builder
	sb.WriteString("# 自动生成示例标题\n\n")
	sb.WriteString("根据提示生成的内容：\n\n")
	sb.WriteString(prompt.User)
	sb.WriteString("\n")
	return sb.String(), nil
}
