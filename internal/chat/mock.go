package chat

import (
	"context"
	"fmt"

	"github.com/fpang/poetry-camera/internal/assets"
)

// MockDescriber returns the canned description of the placeholder frame.
type MockDescriber struct{}

func (MockDescriber) Name() string { return "mock" }

func (MockDescriber) Describe(ctx context.Context, image []byte, _ string) (*Description, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	m := assets.MockDescription
	return &Description{Text: m.Description, Story: m.Story, Items: append([]string(nil), m.Items...)}, nil
}

// MockComposer returns the canned poem.
type MockComposer struct{}

func (MockComposer) Name() string { return "mock" }

func (MockComposer) Compose(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return assets.MockPoem, nil
}
