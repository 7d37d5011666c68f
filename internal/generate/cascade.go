package generate

import (
	"context"
	"errors"
	"math/rand"

	"memebot/internal/logging"
	"memebot/internal/metrics"
)

// TextProvider is one text-generation backend. The cascade knows
// nothing beyond this contract.
type TextProvider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageProvider is one image-generation backend returning raw PNG
// bytes.
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ErrNoImage is returned by the image cascade when every backend
// failed. It is a recoverable outcome: the reply proceeds text-only.
var ErrNoImage = errors.New("no image available")

// FallbackMessages is the static pool used when every text backend
// fails. Picked uniformly at random, no state between picks.
var FallbackMessages = []string{
	"Chale sorry oo, my brain dey jam small. Try me again later. 😂🙏",
	"Ei sorry o! The meme engine sleep small. Come back make we vibe. 😅🤖",
	"Network no dey my side, chale. Try me later wai. 🔌😂",
	"Abeg, system choke small. I no fit run am now. Try again later. 🙏😔",
	"My woman don give me wahala wey she bill me on top. I go sort am, come back rydee norrr! 😅🙏",
}

// TextCascade tries backends in declared priority order, one attempt
// each, and falls back to the static pool on exhaustion. Generate
// never fails.
type TextCascade struct {
	providers []TextProvider
	pool      []string
	randFn    func(n int) int
}

func NewTextCascade(providers ...TextProvider) *TextCascade {
	return &TextCascade{providers: providers, pool: FallbackMessages, randFn: rand.Intn}
}

func (c *TextCascade) Generate(ctx context.Context, prompt string) string {
	for _, p := range c.providers {
		out, err := p.Complete(ctx, prompt)
		if err != nil {
			logging.Warn("text_backend_failed", map[string]any{"provider": p.Name(), "error": err.Error()})
			metrics.IncProviderFailure(p.Name())
			continue
		}
		return out
	}
	logging.Warn("text_cascade_exhausted", nil)
	metrics.TextFallbacks.Inc()
	return c.pool[c.randFn(len(c.pool))]
}

// ImageCascade mirrors TextCascade but has no static fallback:
// exhaustion surfaces ErrNoImage to the caller.
type ImageCascade struct {
	providers []ImageProvider
}

func NewImageCascade(providers ...ImageProvider) *ImageCascade {
	return &ImageCascade{providers: providers}
}

func (c *ImageCascade) Generate(ctx context.Context, prompt string) ([]byte, error) {
	for _, p := range c.providers {
		b, err := p.GenerateImage(ctx, prompt)
		if err != nil {
			logging.Warn("image_backend_failed", map[string]any{"provider": p.Name(), "error": err.Error()})
			metrics.IncProviderFailure(p.Name())
			continue
		}
		return b, nil
	}
	metrics.ImageFallbacks.Inc()
	return nil, ErrNoImage
}
