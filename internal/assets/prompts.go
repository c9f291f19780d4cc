package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// --- Static prompts ---

// VisionSystemPrompt frames the vision model as the poet's eyes.
//
//go:embed prompts/vision-system.txt
var VisionSystemPrompt string

// VisionUserPrompt asks for the strict {description, story, items} JSON reply.
//
//go:embed prompts/vision-user.txt
var VisionUserPrompt string

// --- Dynamic prompt templates ---

//go:embed prompts/poem-system.txt
var poemSystemTemplate string

//go:embed prompts/poem-user.txt
var poemUserTemplate string

var (
	poemSystemTmpl = template.Must(template.New("poem-system").Parse(poemSystemTemplate))
	poemUserTmpl   = template.Must(template.New("poem-user").Parse(poemUserTemplate))
)

// PoemPromptData holds the dynamic data injected into the poem prompts.
type PoemPromptData struct {
	// Analysis is the vision reply, usually as compact JSON.
	Analysis string
	// PaperMM is the receipt paper width.
	PaperMM int
}

// RenderPoemSystemPrompt renders the poem system instruction.
func RenderPoemSystemPrompt(paperMM int) string {
	return renderTemplate(poemSystemTmpl, PoemPromptData{PaperMM: paperMM})
}

// RenderPoemUserPrompt renders the poem request around the analysis text.
func RenderPoemUserPrompt(analysis string) string {
	return renderTemplate(poemUserTmpl, PoemPromptData{Analysis: analysis})
}

func renderTemplate(tmpl *template.Template, data PoemPromptData) string {
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
