package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TagRules controls tag padding.
type TagRules struct {
	Min int
	// Pad is tried in order when the post has fewer than Min tags.
	Pad []string
}

// DefaultTagRules matches the config defaults.
func DefaultTagRules() TagRules {
	return TagRules{Min: 3, Pad: []string{"美食", "家常菜", "今日吃什么", "简单食谱"}}
}

var (
	hashtagRe = regexp.MustCompile(`#([^\s#，。！？、；：,.!?;:()（）]+)#?`)
	titleRe   = regexp.MustCompile(`(?m)^#[ \t]+(.+)$`)
	fenceRe   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n(.*?)\\n?```$")
	spacesRe  = regexp.MustCompile(`[ \t]{2,}`)
)

// PostProcess 校验模型输出并整理为 Post：标题、去掉话题标签的正文、标签列表。
func PostProcess(raw string, rules TagRules) (Post, error) {
	md := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(md); len(m) == 2 {
		md = strings.TrimSpace(m[1])
	}
	if md == "" {
		return Post{}, errors.New("model returned empty content")
	}

	title, body := splitTitle(md)
	if title == "" {
		return Post{}, fmt.Errorf("model returned no title: %.40q", md)
	}
	return NormalizePost(Post{Title: title, Body: body}, rules), nil
}

func splitTitle(md string) (string, string) {
	if loc := titleRe.FindStringSubmatchIndex(md); loc != nil {
		title := strings.TrimSpace(md[loc[2]:loc[3]])
		body := md[:loc[0]] + md[loc[1]:]
		return title, strings.TrimSpace(body)
	}
	// 没有一级标题时，首个非空行作标题。
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		title := strings.TrimSpace(strings.TrimLeft(line, "#"))
		return title, strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
	}
	return "", ""
}

// NormalizePost moves every #tag in the body into Tags (first-seen order, no duplicates),
// strips them from the body, and pads Tags to rules.Min.
func NormalizePost(p Post, rules TagRules) Post {
	tags := make([]string, 0, len(p.Tags)+4)
	seen := make(map[string]bool)
	add := func(t string) {
		t = strings.TrimSpace(strings.Trim(t, "#"))
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}
	for _, t := range p.Tags {
		add(t)
	}
	bodyTags, body := splitHashtags(p.Body)
	for _, t := range bodyTags {
		add(t)
	}
	for _, t := range rules.Pad {
		if len(tags) >= rules.Min {
			break
		}
		add(t)
	}
	for i := 1; len(tags) < rules.Min; i++ {
		add(fmt.Sprintf("美食分享%d", i))
	}
	return Post{Title: p.Title, Body: body, Tags: tags}
}

// ExtractHashtags returns unique tag names in first-seen order.
func ExtractHashtags(body string) []string {
	tags, _ := splitHashtags(body)
	return tags
}

// HasHashtag reports whether any #token is left in s.
func HasHashtag(s string) bool {
	return hashtagRe.MatchString(s)
}

// StripHashtags removes #tokens and tidies the whitespace they leave behind.
func StripHashtags(body string) string {
	_, stripped := splitHashtags(body)
	return stripped
}

// splitHashtags repeats extraction until nothing matches: removing "#a#" from "##a#b" exposes
// "#b".
func splitHashtags(body string) ([]string, string) {
	var tags []string
	seen := make(map[string]bool)
	for hashtagRe.MatchString(body) {
		for _, m := range hashtagRe.FindAllStringSubmatch(body, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				tags = append(tags, m[1])
			}
		}
		body = hashtagRe.ReplaceAllString(body, "")
	}
	return tags, tidy(body)
}

func tidy(body string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(spacesRe.ReplaceAllString(line, " "), " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			line = ""
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
