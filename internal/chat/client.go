// Package chat sequences the two external text services the camera depends
// on: a vision model that describes the captured photo and a text model that
// turns the description into a poem. Each call runs under its own
// RetryPolicy and every failure surfaces as a classified ServiceError.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fpang/poetry-camera/internal/config"
)

// Operation names used in errors, logs and metrics.
const (
	OpDescribe = "describe_image"
	OpCompose  = "compose_artifact"
)

// Describer is a vision backend.
type Describer interface {
	Name() string
	Describe(ctx context.Context, image []byte, mime string) (*Description, error)
}

// Composer is a poem backend.
type Composer interface {
	Name() string
	Compose(ctx context.Context, description string) (string, error)
}

// Client wraps a describer and a composer with retry, per-attempt timeouts
// and a shared client-side rate limit.
type Client struct {
	describer      Describer
	composer       Composer
	describePolicy RetryPolicy
	composePolicy  RetryPolicy
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	sleep          Sleeper
}

// Option customises a Client.
type Option func(*Client)

// WithSleeper replaces the backoff sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithRateLimit caps outbound attempts per minute across both services.
// Zero disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 2)
	}
}

// WithAttemptTimeout bounds each individual attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) { c.attemptTimeout = d }
}

// NewClient creates a Client.
func NewClient(d Describer, c Composer, describePolicy, composePolicy RetryPolicy, opts ...Option) *Client {
	cl := &Client{
		describer:      d,
		composer:       c,
		describePolicy: describePolicy,
		composePolicy:  composePolicy,
		sleep:          sleepContext,
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// Backends returns the describer and composer names.
func (c *Client) Backends() (describer, composer string) {
	return c.describer.Name(), c.composer.Name()
}

// DescribeImage asks the vision backend to describe a photo.
func (c *Client) DescribeImage(ctx context.Context, image []byte, mime string) (*Description, error) {
	if len(image) == 0 {
		return nil, Classify(OpDescribe, fmt.Errorf("%w: empty image", ErrInvalidInput))
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	log.Info().Str("backend", c.describer.Name()).Int("imageBytes", len(image)).Msg("Describing photo")
	return retry(ctx, OpDescribe, c.describePolicy, c.sleep, func(ctx context.Context, attempt int) (*Description, error) {
		ctx, cancel := c.attemptContext(ctx)
		defer cancel()
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		return c.describer.Describe(ctx, image, mime)
	})
}

// ComposeArtifact asks the poem backend for a poem about description.
func (c *Client) ComposeArtifact(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", Classify(OpCompose, fmt.Errorf("%w: empty description", ErrInvalidInput))
	}
	log.Info().Str("backend", c.composer.Name()).Int("descriptionLength", len(description)).Msg("Composing poem")
	return retry(ctx, OpCompose, c.composePolicy, c.sleep, func(ctx context.Context, attempt int) (string, error) {
		ctx, cancel := c.attemptContext(ctx)
		defer cancel()
		if err := c.wait(ctx); err != nil {
			return "", err
		}
		poem, err := c.composer.Compose(ctx, description)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(poem) == "" {
			return "", fmt.Errorf("%w: empty poem", ErrMalformedReply)
		}
		return poem, nil
	})
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.attemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.attemptTimeout)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// NewFromConfig selects backends from configuration. A service without a key
// (and without an explicit backend) falls back to its mock.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	svc := cfg.Services
	paperMM := cfg.Devices.PrinterWidthMM

	var describer Describer
	switch backend := pickBackend(svc.Vision, "openai"); backend {
	case "openai", "deepseek":
		describer = NewOpenAIDescriber(svc.Vision.BaseURL, svc.Vision.APIKey, svc.Vision.Model, svc.Vision.Timeout)
	case "gemini":
		cl, err := NewGeminiClient(ctx, svc.Vision.APIKey)
		if err != nil {
			return nil, err
		}
		describer = NewGeminiDescriber(cl, svc.Vision.Model)
	default:
		describer = MockDescriber{}
	}

	var composer Composer
	switch backend := pickBackend(svc.Poem, "deepseek"); backend {
	case "deepseek", "openai":
		base := svc.Poem.BaseURL
		if base == "" && backend == "openai" {
			base = DefaultOpenAIBaseURL
		}
		model := svc.Poem.Model
		if model == "" && backend == "openai" {
			model = DefaultOpenAIModel
		}
		composer = NewDeepSeekComposer(base, svc.Poem.APIKey, model, svc.Poem.Timeout, paperMM)
	case "gemini":
		cl, err := NewGeminiClient(ctx, svc.Poem.APIKey)
		if err != nil {
			return nil, err
		}
		composer = NewGeminiComposer(cl, svc.Poem.Model, paperMM)
	default:
		composer = MockComposer{}
	}

	log.Debug().Str("describer", describer.Name()).Str("composer", composer.Name()).Msg("Text services selected")
	return NewClient(describer, composer,
		PolicyFromConfig(svc.Vision.Retry),
		PolicyFromConfig(svc.Poem.Retry),
		WithRateLimit(svc.RatePerMinute),
		WithAttemptTimeout(max(svc.Vision.Timeout, svc.Poem.Timeout)),
	), nil
}

// pickBackend resolves the backend name. An explicit backend wins; an empty
// one becomes fallback when a key is present and mock otherwise.
func pickBackend(svc config.ServiceConfig, fallback string) string {
	b := strings.ToLower(svc.Backend)
	switch {
	case b == "mock":
		return "mock"
	case svc.APIKey == "":
		if b != "" {
			log.Warn().Str("backend", b).Msg("No API key configured, using mock service")
		}
		return "mock"
	case b != "":
		return b
	default:
		return fallback
	}
}
