package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ImageProvider is the Stability text-to-image entry in the image
// cascade.
type ImageProvider struct {
	baseURL    string
	apiKey     string
	engine     string
	httpClient *http.Client
}

func New(apiKey string) *ImageProvider {
	return &ImageProvider{
		baseURL:    "https://api.stability.ai/v1",
		apiKey:     apiKey,
		engine:     "stable-diffusion-v1-5",
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *ImageProvider) Name() string { return "stability/" + p.engine }

type generationRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CfgScale    int          `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
}

type textPrompt struct {
	Text string `json:"text"`
}

type generationResponse struct {
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

func (p *ImageProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(generationRequest{
		TextPrompts: []textPrompt{{Text: prompt}},
		CfgScale:    7,
		Height:      512,
		Width:       512,
		Samples:     1,
		Steps:       30,
	})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/generation/%s/text-to-image", p.baseURL, p.engine)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("stability: unexpected status %d: %s", res.StatusCode, buf)
	}
	var payload generationResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("stability: decode response: %w", err)
	}
	if len(payload.Artifacts) == 0 {
		return nil, errors.New("stability: no artifacts in response")
	}
	return base64.StdEncoding.DecodeString(payload.Artifacts[0].Base64)
}
