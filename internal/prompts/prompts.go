// Package prompts renders the generation prompts used by the conversation chain.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"lexrag/internal/models"
)

//go:embed templates/*.tmpl
var files embed.FS

var templates = template.Must(template.New("prompts").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	ParseFS(files, "templates/*.tmpl"))

type CondenseInput struct {
	History  []models.Turn
	Question string
}

// AnswerInput carries the retrieved passages in rank order; they are numbered
// from [1] in the prompt.
type AnswerInput struct {
	Question string
	Context  []string
}

func Condense(in CondenseInput) (string, error) {
	return render("condense.tmpl", in)
}

// Answer renders the numbered context, the question and the instructions,
// ending with the answer cue.
func Answer(in AnswerInput) (string, error) {
	return render("answer.tmpl", in)
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
