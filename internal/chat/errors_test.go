package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"genai 400", &genai.APIError{Code: 400}, Permanent},
		{"genai 403", &genai.APIError{Code: 403}, Permanent},
		{"genai 429", &genai.APIError{Code: 429}, Transient},
		{"genai 500", &genai.APIError{Code: 500}, Transient},
		{"http 401", &HTTPStatusError{StatusCode: 401}, Permanent},
		{"http 404", &HTTPStatusError{StatusCode: 404}, Permanent},
		{"http 502 wrapped", fmt.Errorf("call: %w", &HTTPStatusError{StatusCode: 502}), Transient},
		{"deadline", context.DeadlineExceeded, Transient},
		{"cancelled", context.Canceled, Permanent},
		{"net op", &net.OpError{Op: "dial", Err: errors.New("refused")}, Transient},
		{"malformed", fmt.Errorf("%w: bad json", ErrMalformedReply), Transient},
		{"invalid input", fmt.Errorf("%w: empty", ErrInvalidInput), Permanent},
		{"invalid key text", errors.New("API key not valid. Please pass a valid API key."), Permanent},
		{"unknown", errors.New("something odd"), Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if got.Kind != tt.want {
				t.Errorf("Classify(%v).Kind = %s, want %s", tt.err, got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) && got.Err != tt.err {
				t.Errorf("classified error does not wrap original")
			}
		})
	}
}

func TestClassify_PassesThroughServiceError(t *testing.T) {
	orig := &ServiceError{Kind: Permanent, Op: "x", Message: "m"}
	if got := Classify("y", fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("expected the original ServiceError, got %+v", got)
	}
}
