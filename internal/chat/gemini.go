package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/poetry-camera/internal/assets"
)

// Gemini Model IDs
//
// | Model Name               | API Model ID           | Use Case                      |
// |--------------------------|------------------------|-------------------------------|
// | Gemini 3 Flash (Preview) | gemini-3-flash-preview | Best for speed + intelligence |
// | Gemini 2.5 Flash         | gemini-2.5-flash       | Stable, balanced performance  |
// | Gemini 2.5 Flash-Lite    | gemini-2.5-flash-lite  | High-throughput, lowest cost  |
const (
	ModelGemini3FlashPreview = "gemini-3-flash-preview"
	ModelGemini25Flash       = "gemini-2.5-flash"
	ModelGemini25FlashLite   = "gemini-2.5-flash-lite"
)

// DefaultGeminiModel is used when no model is configured. GEMINI_MODEL
// overrides it for both services.
const DefaultGeminiModel = ModelGemini25Flash

// GeminiModel resolves the model: explicit config, then GEMINI_MODEL, then the default.
func GeminiModel(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultGeminiModel
}

// NewGeminiClient creates a genai client for the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GeminiDescriber describes photos with Gemini.
type GeminiDescriber struct {
	client *genai.Client
	model  string
}

// NewGeminiDescriber creates a Gemini vision backend.
func NewGeminiDescriber(client *genai.Client, model string) *GeminiDescriber {
	return &GeminiDescriber{client: client, model: GeminiModel(model)}
}

func (d *GeminiDescriber) Name() string { return "gemini:" + d.model }

func (d *GeminiDescriber) Describe(ctx context.Context, image []byte, mime string) (*Description, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.VisionSystemPrompt}},
		},
		ResponseMIMEType: "application/json",
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mime, Data: image}},
		{Text: assets.VisionUserPrompt},
	}

	callStart := time.Now()
	log.Debug().Str("model", d.model).Int("imageBytes", len(image)).Msg("Starting Gemini API call for photo description")
	resp, err := d.client.Models.GenerateContent(ctx, d.model, []*genai.Content{{Role: "user", Parts: parts}}, config)
	duration := time.Since(callStart)
	if err != nil {
		log.Debug().Err(err).Dur("duration", duration).Msg("Gemini description call failed")
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response from Gemini API", ErrMalformedReply)
	}

	text := resp.Text()
	log.Debug().Int("responseLength", len(text)).Dur("duration", duration).Msg("Gemini description response received")
	return parseDescription(text)
}

// GeminiComposer writes poems with Gemini.
type GeminiComposer struct {
	client  *genai.Client
	model   string
	paperMM int
}

// NewGeminiComposer creates a Gemini poem backend.
func NewGeminiComposer(client *genai.Client, model string, paperMM int) *GeminiComposer {
	return &GeminiComposer{client: client, model: GeminiModel(model), paperMM: paperMM}
}

func (c *GeminiComposer) Name() string { return "gemini:" + c.model }

func (c *GeminiComposer) Compose(ctx context.Context, description string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.RenderPoemSystemPrompt(c.paperMM)}},
		},
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: assets.RenderPoemUserPrompt(description)}},
	}}

	callStart := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty response from Gemini API", ErrMalformedReply)
	}
	poem := strings.TrimSpace(resp.Text())
	if poem == "" {
		return "", fmt.Errorf("%w: Gemini returned no text", ErrMalformedReply)
	}
	log.Debug().Int("poemLength", len(poem)).Dur("duration", time.Since(callStart)).Msg("Gemini poem received")
	return poem, nil
}
