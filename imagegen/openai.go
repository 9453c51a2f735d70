package imagegen

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"today_eat_what/llm"
)

// OpenAIImages generates images through an OpenAI-compatible images endpoint (doubao, etc.).
type OpenAIImages struct {
	Vendor string
	Model  string
	Opts   []option.RequestOption
}

func NewOpenAIImages(s llm.Settings) (*OpenAIImages, error) {
	if s.APIKey == "" {
		return nil, llm.ErrUnconfigured
	}
	if s.Model == "" {
		return nil, errors.New("image model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey), option.WithMaxRetries(0)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	vendor := s.Provider
	if vendor == "" {
		vendor = "openai"
	}
	return &OpenAIImages{Vendor: vendor, Model: s.Model, Opts: opts}, nil
}

func (o *OpenAIImages) Generate(ctx context.Context, prompt string, aspect Aspect) (string, error) {
	client := openai.NewClient(o.Opts...)
	size := openai.ImageGenerateParamsSize1024x1792
	if aspect == AspectSquare {
		size = openai.ImageGenerateParamsSize1024x1024
	}
	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(o.Model),
		Size:           size,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
		N:              openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("%s image: %w", o.Vendor, err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%s image: empty data", o.Vendor)
	}
	if resp.Data[0].URL != "" {
		return resp.Data[0].URL, nil
	}
	if resp.Data[0].B64JSON != "" {
		return "data:image/png;base64," + resp.Data[0].B64JSON, nil
	}
	return "", fmt.Errorf("%s image: no url in response", o.Vendor)
}
