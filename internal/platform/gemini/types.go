package gemini

import "google.golang.org/genai"

// Placeholders used when the user supplied no context or exclusions.
const (
	defaultContext          = "Extract from image content"
	defaultNegativeKeywords = "None"
)

// promptData represents the data passed to the prompt template
type promptData struct {
	Context          string
	NegativeKeywords string
}

// ResponseSchema represents the JSON object the model is asked to return.
type ResponseSchema struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// metadataSchema is the structured-output schema sent with every request.
func metadataSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {
				Type:        genai.TypeString,
				Description: "A concise, keyword-rich title (max 7 words).",
			},
			"description": {
				Type:        genai.TypeString,
				Description: "A concise description containing main keywords (max 25 words).",
			},
			"keywords": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "A list of 45-50 keywords sorted strictly by relevance.",
			},
		},
		Required: []string{"title", "description", "keywords"},
	}
}
