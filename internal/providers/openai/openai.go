package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client is a focused OpenAI client covering chat completions and
// image generation.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("openai: marshal request: %w", err)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("openai: read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

// TextProvider is one chat-completion model in the cascade. Two of
// these share a Client so gpt-4o and gpt-3.5-turbo are independent
// cascade entries.
type TextProvider struct {
	client      *Client
	model       string
	temperature float64
	maxTokens   int
}

func NewTextProvider(client *Client, model string) *TextProvider {
	return &TextProvider{client: client, model: model, temperature: 0.9, maxTokens: 80}
}

func (p *TextProvider) Name() string { return p.model }

func (p *TextProvider) Complete(ctx context.Context, prompt string) (string, error) {
	var payload chatResponse
	err := p.client.postJSON(ctx, "/chat/completions", chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}, &payload)
	if err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return strings.TrimSpace(payload.Choices[0].Message.Content), nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// ImageProvider generates an image with DALL·E and downloads the
// returned URL into raw bytes.
type ImageProvider struct {
	client *Client
	model  string
	size   string
}

func NewImageProvider(client *Client) *ImageProvider {
	return &ImageProvider{client: client, model: "dall-e-3", size: "512x512"}
}

func (p *ImageProvider) Name() string { return p.model }

func (p *ImageProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	var payload imageResponse
	err := p.client.postJSON(ctx, "/images/generations", imageRequest{
		Model:  p.model,
		Prompt: prompt,
		N:      1,
		Size:   p.size,
	}, &payload)
	if err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 || payload.Data[0].URL == "" {
		return nil, errors.New("openai: no image url in response")
	}
	return p.download(ctx, payload.Data[0].URL)
}

func (p *ImageProvider) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := p.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url}
	}
	return io.ReadAll(io.LimitReader(res.Body, 16<<20))
}
