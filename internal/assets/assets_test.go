package assets

import (
	"strings"
	"testing"
)

func TestStatusTable_HasEveryPhase(t *testing.T) {
	table, err := StatusTable()
	if err != nil {
		t.Fatalf("StatusTable() error = %v", err)
	}
	for _, id := range []string{
		"idle", "armed", "countdown", "capturing", "analyzing", "generating",
		"printing", "cooldown", "error",
		"capture_failed", "analysis_failed", "generation_failed", "print_failed",
	} {
		entry, ok := table[id]
		if !ok {
			t.Errorf("missing status id %q", id)
			continue
		}
		if entry.Primary == "" || entry.Secondary == "" {
			t.Errorf("status %q has empty text: %+v", id, entry)
		}
	}
}

func TestRenderPoemPrompts(t *testing.T) {
	sys := RenderPoemSystemPrompt(58)
	if !strings.Contains(sys, "58") {
		t.Errorf("system prompt missing paper width: %q", sys)
	}
	user := RenderPoemUserPrompt(`{"description":"a red bicycle"}`)
	if !strings.Contains(user, "a red bicycle") {
		t.Errorf("user prompt missing analysis: %q", user)
	}
}
