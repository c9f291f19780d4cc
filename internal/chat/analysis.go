package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fpang/poetry-camera/internal/jsonutil"
)

// Description is the vision service's reading of a photo.
type Description struct {
	Text  string   `json:"description"`
	Story string   `json:"story,omitempty"`
	Items []string `json:"items,omitempty"`
}

// PromptJSON renders the description as the compact JSON the poem prompt embeds.
func (d *Description) PromptJSON() string {
	b, err := json.Marshal(d)
	if err != nil {
		return d.Text
	}
	return string(b)
}

// String renders the description for the artifact file.
func (d *Description) String() string {
	var sb strings.Builder
	sb.WriteString("描述 / Description: ")
	sb.WriteString(d.Text)
	if d.Story != "" {
		sb.WriteString("\n故事 / Story: ")
		sb.WriteString(d.Story)
	}
	if len(d.Items) > 0 {
		sb.WriteString("\n物品 / Items: ")
		sb.WriteString(strings.Join(d.Items, ", "))
	}
	return sb.String()
}

// parseDescription extracts {description, story, items} from a model reply.
// description and story are required; items may be empty.
func parseDescription(raw string) (*Description, error) {
	fields, err := jsonutil.ParseJSON[map[string]json.RawMessage](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if err := jsonutil.RequireKeys(fields, "description", "story", "items"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	var d Description
	if err := json.Unmarshal(fields["description"], &d.Text); err != nil {
		return nil, fmt.Errorf("%w: description must be a string", ErrMalformedReply)
	}
	if err := json.Unmarshal(fields["story"], &d.Story); err != nil {
		return nil, fmt.Errorf("%w: story must be a string", ErrMalformedReply)
	}
	if err := json.Unmarshal(fields["items"], &d.Items); err != nil {
		return nil, fmt.Errorf("%w: items must be a list of strings", ErrMalformedReply)
	}
	if strings.TrimSpace(d.Text) == "" {
		return nil, fmt.Errorf("%w: empty description", ErrMalformedReply)
	}
	return &d, nil
}
