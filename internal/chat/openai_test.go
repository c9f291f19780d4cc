package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionHandler(t *testing.T, content string, check func(req completionRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if check != nil {
			check(req)
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestOpenAIDescriber_Describe(t *testing.T) {
	reply := "```json\n{\"description\":\"a red bicycle\",\"story\":\"left by the river\",\"items\":[\"bicycle\"]}\n```"
	server := httptest.NewServer(completionHandler(t, reply, func(req completionRequest) {
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected system+user messages, got %d", len(req.Messages))
		}
		parts, _ := json.Marshal(req.Messages[1].Content)
		if !strings.Contains(string(parts), "data:image/jpeg;base64,") {
			t.Errorf("image data URL missing from request: %s", parts)
		}
	}))
	defer server.Close()

	d := NewOpenAIDescriber(server.URL, "test-key", "", time.Second)
	desc, err := d.Describe(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "image/jpeg")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if desc.Text != "a red bicycle" || desc.Story != "left by the river" || len(desc.Items) != 1 {
		t.Errorf("unexpected description %+v", desc)
	}
}

func TestOpenAIDescriber_MissingKeysIsMalformed(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, `{"description":"x"}`, nil))
	defer server.Close()

	d := NewOpenAIDescriber(server.URL, "test-key", "gpt-4o-mini", time.Second)
	_, err := d.Describe(context.Background(), []byte{1}, "image/jpeg")
	if err == nil {
		t.Fatal("expected error for reply without story/items")
	}
	if Classify(OpDescribe, err).Kind != Transient {
		t.Errorf("malformed reply should be retried, got %v", err)
	}
}

func TestDeepSeekComposer_Compose(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, "  《單車》\n紅色的輪子\n  ", func(req completionRequest) {
		if req.Model != "deepseek-chat" {
			t.Errorf("unexpected model %q", req.Model)
		}
		user, _ := req.Messages[1].Content.(string)
		if !strings.Contains(user, "a red bicycle") {
			t.Errorf("description missing from prompt: %q", user)
		}
	}))
	defer server.Close()

	c := NewDeepSeekComposer(server.URL, "test-key", "", time.Second, 58)
	poem, err := c.Compose(context.Background(), `{"description":"a red bicycle"}`)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if poem != "《單車》\n紅色的輪子" {
		t.Errorf("unexpected poem %q", poem)
	}
}

func TestCompletions_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, Permanent},
		{http.StatusBadRequest, Permanent},
		{http.StatusTooManyRequests, Transient},
		{http.StatusServiceUnavailable, Transient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"nope"}}`, tt.status)
			}))
			defer server.Close()

			c := NewDeepSeekComposer(server.URL, "test-key", "", time.Second, 58)
			_, err := c.Compose(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Classify(OpCompose, err).Kind; got != tt.want {
				t.Errorf("status %d classified %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestPickBackend(t *testing.T) {
	tests := []struct {
		backend, key, fallback, want string
	}{
		{"", "", "openai", "mock"},
		{"", "k", "openai", "openai"},
		{"gemini", "k", "openai", "gemini"},
		{"gemini", "", "openai", "mock"},
		{"mock", "k", "deepseek", "mock"},
	}
	for _, tt := range tests {
		svc := configService(tt.backend, tt.key)
		if got := pickBackend(svc, tt.fallback); got != tt.want {
			t.Errorf("pickBackend(%q, key=%q) = %s, want %s", tt.backend, tt.key, got, tt.want)
		}
	}
}
