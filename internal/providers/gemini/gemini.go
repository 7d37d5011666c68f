package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

// Client wraps the Gemini SDK for the text and image backends.
type Client struct {
	client *genai.Client
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

// TextProvider generates reply text with a Gemini model.
type TextProvider struct {
	client *Client
	model  string
}

func NewTextProvider(client *Client) *TextProvider {
	return &TextProvider{client: client, model: "gemini-1.5-pro"}
}

func (p *TextProvider) Name() string { return p.model }

func (p *TextProvider) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := p.client.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("gemini: no text in response")
	}
	return out, nil
}

// ImageProvider asks a Gemini image-capable model for inline image
// data.
type ImageProvider struct {
	client *Client
	model  string
}

func NewImageProvider(client *Client) *ImageProvider {
	return &ImageProvider{client: client, model: "gemini-2.0-flash-preview-image-generation"}
}

func (p *ImageProvider) Name() string { return p.model }

func (p *ImageProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	result, err := p.client.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, errors.New("gemini: empty response")
	}
	for _, part := range result.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, errors.New("gemini: no image in response")
}
