package chat

// openai.go implements the OpenAI-compatible chat-completions backends. The
// same wire format serves OpenAI (vision) and DeepSeek (poem); only the base
// URL, model and key differ.

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/poetry-camera/internal/assets"
)

const (
	// DefaultOpenAIBaseURL is the OpenAI API base URL.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultDeepSeekBaseURL is the DeepSeek API base URL.
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"

	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultDeepSeekModel = "deepseek-chat"

	defaultTimeout = 30 * time.Second
)

// CompletionsClient speaks the chat-completions protocol.
type CompletionsClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
}

// NewCompletionsClient creates a client. Empty baseURL and model are invalid;
// use NewOpenAIDescriber or NewDeepSeekComposer for defaults.
func NewCompletionsClient(baseURL, apiKey, model string, timeout time.Duration) *CompletionsClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CompletionsClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// --- wire types ---

type completionRequest struct {
	Model     string              `json:"model"`
	Messages  []completionMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// complete posts one chat-completions request and returns the first choice.
func (c *CompletionsClient) complete(ctx context.Context, messages []completionMessage) (string, error) {
	payload, err := json.Marshal(completionRequest{Model: c.model, Messages: messages, MaxTokens: c.maxTokens})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrInvalidInput, err)
	}

	startTime := time.Now()
	log.Debug().Str("model", c.model).Str("baseURL", c.baseURL).Int("payloadBytes", len(payload)).Msg("Chat completion request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Chat completion response")
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Chat completion response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", &HTTPStatusError{StatusCode: httpResp.StatusCode, Body: truncate(string(body), 200)}
	}

	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: parse response: %v (body: %s)", ErrMalformedReply, err, truncate(string(body), 200))
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: API error: %s (type: %s)", ErrMalformedReply, resp.Error.Message, resp.Error.Type)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedReply)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// OpenAIDescriber describes photos with an OpenAI-compatible vision model.
type OpenAIDescriber struct {
	client *CompletionsClient
}

// NewOpenAIDescriber creates a vision backend, applying defaults for empty
// baseURL and model.
func NewOpenAIDescriber(baseURL, apiKey, model string, timeout time.Duration) *OpenAIDescriber {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	c := NewCompletionsClient(baseURL, apiKey, model, timeout)
	c.maxTokens = 400
	return &OpenAIDescriber{client: c}
}

func (d *OpenAIDescriber) Name() string { return "openai:" + d.client.model }

// Describe sends the image as a data URL with low detail, which is plenty
// for a receipt-length poem and keeps the request cheap.
func (d *OpenAIDescriber) Describe(ctx context.Context, image []byte, mime string) (*Description, error) {
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
	raw, err := d.client.complete(ctx, []completionMessage{
		{Role: "system", Content: assets.VisionSystemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: assets.VisionUserPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "low"}},
		}},
	})
	if err != nil {
		return nil, err
	}
	return parseDescription(raw)
}

// DeepSeekComposer writes poems with an OpenAI-compatible text model.
type DeepSeekComposer struct {
	client  *CompletionsClient
	paperMM int
}

// NewDeepSeekComposer creates a poem backend, applying defaults for empty
// baseURL and model.
func NewDeepSeekComposer(baseURL, apiKey, model string, timeout time.Duration, paperMM int) *DeepSeekComposer {
	if baseURL == "" {
		baseURL = DefaultDeepSeekBaseURL
	}
	if model == "" {
		model = DefaultDeepSeekModel
	}
	c := NewCompletionsClient(baseURL, apiKey, model, timeout)
	c.maxTokens = 300
	return &DeepSeekComposer{client: c, paperMM: paperMM}
}

func (c *DeepSeekComposer) Name() string { return "deepseek:" + c.client.model }

func (c *DeepSeekComposer) Compose(ctx context.Context, description string) (string, error) {
	return c.client.complete(ctx, []completionMessage{
		{Role: "system", Content: assets.RenderPoemSystemPrompt(c.paperMM)},
		{Role: "user", Content: assets.RenderPoemUserPrompt(description)},
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
