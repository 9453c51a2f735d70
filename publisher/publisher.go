// Package publisher builds the final publish payload and submits it to a publish target.
package publisher

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"today_eat_what/generator"
	"today_eat_what/imagegen"
)

// Rules are the target's payload constraints.
type Rules struct {
	// TitleMax is measured in runes; zero disables truncation.
	TitleMax int
	// DefaultTag is always present in the final tag list.
	DefaultTag string
	Tags       generator.TagRules
	// DigestMax bounds the plain-text digest in runes.
	DigestMax int
}

// DefaultRules matches the config defaults.
func DefaultRules() Rules {
	return Rules{TitleMax: 20, DefaultTag: "今日吃什么", Tags: generator.DefaultTagRules(), DigestMax: 120}
}

// Payload is built once, right before publishing, and never mutated after a failure.
type Payload struct {
	Title  string   `json:"title"`
	Body   string   `json:"content"`
	HTML   string   `json:"html,omitempty"`
	Digest string   `json:"digest,omitempty"`
	Tags   []string `json:"tags"`
	Images []string `json:"images"`
	// Placeholders counts images that are placeholder references.
	Placeholders int `json:"placeholders"`
}

var htmlPolicy = bluemonday.UGCPolicy()

// BuildPayload normalises an approved post for the target.
func BuildPayload(p generator.Post, images imagegen.ImageSet, rules Rules) Payload {
	p = generator.NormalizePost(p, rules.Tags)
	tags := p.Tags
	if rules.DefaultTag != "" && !slices.Contains(tags, rules.DefaultTag) {
		tags = append(tags, rules.DefaultTag)
	}

	html, _ := mdToHTML(p.Body)
	return Payload{
		Title:        truncateTitle(p.Title, rules.TitleMax),
		Body:         p.Body,
		HTML:         html,
		Digest:       defaultDigest(p.Body, rules.DigestMax),
		Tags:         tags,
		Images:       images.URIs(),
		Placeholders: images.Placeholders(),
	}
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return &Error{Kind: KindValidation, Detail: "empty title"}
	}
	if strings.TrimSpace(p.Body) == "" {
		return &Error{Kind: KindValidation, Detail: "empty body"}
	}
	return nil
}

func truncateTitle(title string, max int) string {
	title = strings.TrimSpace(title)
	if max <= 0 || utf8.RuneCountInString(title) <= max {
		return title
	}
	return strings.TrimSpace(string([]rune(title)[:max]))
}

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return htmlPolicy.Sanitize(buf.String()), nil
}

func defaultDigest(md string, limit int) string {
	joined := strings.Join(strings.Fields(md), " ")
	if limit <= 0 || utf8.RuneCountInString(joined) <= limit {
		return joined
	}
	return string([]rune(joined)[:limit])
}
