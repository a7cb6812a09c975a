package gemini

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/phrazzld/stockmeta/internal/generation"
)

//go:embed prompts/metadata.tmpl
var defaultPromptTemplate string

// loadPromptTemplate parses the template at path, or the embedded default
// when path is empty.
func loadPromptTemplate(path string) (*template.Template, error) {
	content := defaultPromptTemplate
	name := "metadata"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
				generation.ErrInvalidConfig, path, err)
		}
		content = string(raw)
		name = path
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			generation.ErrInvalidConfig, err)
	}
	return tmpl, nil
}

// renderPrompt executes tmpl for one request, substituting the placeholders
// for blank context and exclusions.
func renderPrompt(tmpl *template.Template, userContext, exclusions string) (string, error) {
	data := promptData{
		Context:          strings.TrimSpace(userContext),
		NegativeKeywords: strings.TrimSpace(exclusions),
	}
	if data.Context == "" {
		data.Context = defaultContext
	}
	if data.NegativeKeywords == "" {
		data.NegativeKeywords = defaultNegativeKeywords
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	prompt := strings.TrimSpace(buf.String())
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}
