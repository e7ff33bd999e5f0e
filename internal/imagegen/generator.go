// Package imagegen calls the image backend once per (strategy, prompt)
// pair, with a two-tier model fallback and bounded retry.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coverspark/coverspark/internal/gemini"
	"github.com/coverspark/coverspark/pkg/models"
)

// ErrImageGeneration wraps any failure after fallback and retries are
// exhausted. It is recorded on the owning card, never fatal.
var ErrImageGeneration = errors.New("image generation failed")

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 8 * time.Second
)

type Config struct {
	PrimaryModel  string
	FallbackModel string
	AspectRatio   string
	// ImageSize is the resolution tier; only the primary model
	// understands it.
	ImageSize   string
	MaxAttempts int
	RatePerSec  float64
}

type Generator struct {
	client      *gemini.Client
	primary     string
	fallback    string
	aspectRatio string
	imageSize   string
	maxAttempts int
	limiter     *rate.Limiter
	log         *zap.SugaredLogger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(client *gemini.Client, cfg *Config, log *zap.SugaredLogger) *Generator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 2
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}

	return &Generator{
		client:      client,
		primary:     cfg.PrimaryModel,
		fallback:    cfg.FallbackModel,
		aspectRatio: cfg.AspectRatio,
		imageSize:   cfg.ImageSize,
		maxAttempts: maxAttempts,
		limiter:     limiter,
		log:         log,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Generate produces one cover image for the prompt, optionally
// conditioned on a reference image. The primary model is tried first;
// an authorization/availability failure falls back once to the
// secondary model without the resolution tier. Other failures retry
// within the tier with capped exponential backoff, then propagate.
// The returned string is the raw base64 image payload.
func (g *Generator) Generate(ctx context.Context, prompt string, ref *models.ReferenceImage) (string, error) {
	parts := []gemini.Part{{Text: prompt}}
	if ref != nil {
		parts = append(parts, gemini.Part{InlineData: &gemini.Blob{
			MimeType: ref.MediaType,
			Data:     ref.Data,
		}})
	}

	img, err := g.generateTier(ctx, g.primary, parts, g.imageSize)
	if err == nil {
		return img, nil
	}

	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) && apiErr.Unavailable() && g.fallback != "" {
		g.log.Warnw("primary image model unavailable, falling back",
			"primary", g.primary, "fallback", g.fallback, "error", err)
		img, err = g.generateTier(ctx, g.fallback, parts, "")
		if err == nil {
			return img, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrImageGeneration, gemini.ExtractMessage(err))
}

func (g *Generator) generateTier(ctx context.Context, model string, parts []gemini.Part, imageSize string) (string, error) {
	req := &gemini.Request{
		Contents: []gemini.Content{{Parts: parts}},
		GenerationConfig: &gemini.GenerationConfig{
			ImageConfig: &gemini.ImageConfig{
				AspectRatio: g.aspectRatio,
				ImageSize:   imageSize,
			},
		},
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		resp, err := g.client.GenerateContent(ctx, model, req)
		if err == nil {
			data, _, imgErr := gemini.ExtractImage(resp)
			if imgErr != nil {
				return "", imgErr
			}
			return data, nil
		}
		lastErr = err

		var apiErr *gemini.APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return "", err
		}
		if attempt == g.maxAttempts {
			break
		}

		g.log.Warnw("image request retrying",
			"model", model, "attempt", attempt, "backoff", backoff, "error", err)
		if err := g.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return "", lastErr
}
