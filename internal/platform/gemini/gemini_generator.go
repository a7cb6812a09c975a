package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/phrazzld/stockmeta/internal/config"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/generation"
	"google.golang.org/genai"
)

const (
	defaultMaxRetries        = 3
	defaultRetryDelaySeconds = 2
)

// contentGenerator is the subset of the genai client used by the generator.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API to describe images.
type GeminiGenerator struct {
	logger         *slog.Logger
	config         config.LLMConfig
	promptTemplate *template.Template

	// models is nil when no API key is configured.
	models contentGenerator

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGeminiGenerator creates a new instance of GeminiGenerator with the provided dependencies.
//
// An empty API key is accepted: the generator is returned, and each call fails
// with generation.ErrMissingCredential.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if err := validateConfig(ctx, logger, cfg); err != nil {
		return nil, err
	}

	promptTemplate, err := loadPromptTemplate(cfg.PromptTemplatePath)
	if err != nil {
		return nil, err
	}

	var models contentGenerator
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
				generation.ErrInvalidConfig, err)
		}
		models = client.Models
	}

	return newGenerator(logger, cfg, promptTemplate, models), nil
}

func newGenerator(
	logger *slog.Logger,
	cfg config.LLMConfig,
	promptTemplate *template.Template,
	models contentGenerator,
) *GeminiGenerator {
	return &GeminiGenerator{
		logger:         logger.With("component", "gemini_generator"),
		config:         cfg,
		promptTemplate: promptTemplate,
		models:         models,
		sleep:          sleepContext,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateMetadata describes one image. It implements generation.Generator.
func (g *GeminiGenerator) GenerateMetadata(
	ctx context.Context,
	req generation.Request,
) (*domain.Metadata, error) {
	if g.models == nil {
		return nil, fmt.Errorf("%w. Set the Gemini API key in the server configuration",
			generation.ErrMissingCredential)
	}

	if len(req.Image) == 0 {
		return nil, generation.ErrEmptyImage
	}

	prompt, err := renderPrompt(g.promptTemplate, req.Context, req.Exclusions)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = g.config.ModelName
	}

	g.logger.DebugContext(ctx, "Generating image metadata",
		"model", model,
		"mime_type", req.MIMEType,
		"image_bytes", len(req.Image),
		"prompt_length", len(prompt))

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: req.MIMEType, Data: req.Image}},
			{Text: prompt},
		},
	}}

	response, err := g.callGeminiWithRetry(ctx, model, contents)
	if err != nil {
		return nil, err
	}

	return parseResponse(response)
}

// generateConfig builds the per-request generation settings.
func (g *GeminiGenerator) generateConfig() *genai.GenerateContentConfig {
	temperature := float32(g.config.Temperature)
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   metadataSchema(),
		Temperature:      &temperature,
	}
}

// callGeminiWithRetry makes a call to the Gemini API with exponential backoff retry logic.
//
// Permanent errors (content blocked by safety filters, malformed responses)
// are returned immediately without retrying. Cancellation of ctx stops the
// loop at once.
func (g *GeminiGenerator) callGeminiWithRetry(
	ctx context.Context,
	model string,
	contents []*genai.Content,
) (*ResponseSchema, error) {
	maxRetries := g.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelaySeconds := g.config.RetryDelaySeconds
	if baseDelaySeconds < 1 {
		baseDelaySeconds = defaultRetryDelaySeconds
	}

	genConfig := g.generateConfig()

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		g.logger.DebugContext(ctx, "Making Gemini API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		resp, err := g.models.GenerateContent(ctx, model, contents, genConfig)
		if err == nil {
			response, perr := extractResponse(resp)
			if perr != nil {
				g.logger.WarnContext(ctx, "Permanent error occurred, not retrying",
					"attempt", attemptNum,
					"error", perr)
				return nil, perr
			}
			return response, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		g.logger.WarnContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		delay := g.backoff(baseDelaySeconds, attempt)
		g.logger.DebugContext(ctx, "Retrying after delay",
			"attempt", attemptNum,
			"delay", delay.String())

		if err := g.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// backoff returns baseDelay * 2^attempt scaled by a jitter factor in [0.5, 1).
func (g *GeminiGenerator) backoff(baseDelaySeconds, attempt int) time.Duration {
	g.rngMu.Lock()
	jitterFactor := 0.5 + g.rng.Float64()*0.5
	g.rngMu.Unlock()

	backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
	return time.Duration(backoffSeconds * jitterFactor * float64(time.Second))
}

// extractResponse pulls the JSON text out of a model response.
func extractResponse(resp *genai.GenerateContentResponse) (*ResponseSchema, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: no response generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, generation.ErrContentBlocked
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("%w: no response generated", generation.ErrInvalidResponse)
	}

	var parsed ResponseSchema
	if err := json.Unmarshal([]byte(text.String()), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}
	return &parsed, nil
}

// parseResponse validates a decoded response and converts it to domain metadata.
func parseResponse(response *ResponseSchema) (*domain.Metadata, error) {
	if response == nil {
		return nil, fmt.Errorf("%w: response is nil", generation.ErrInvalidResponse)
	}

	title := strings.TrimSpace(response.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: missing title", generation.ErrInvalidResponse)
	}
	description := strings.TrimSpace(response.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: missing description", generation.ErrInvalidResponse)
	}

	keywords := make([]string, 0, len(response.Keywords))
	for _, k := range response.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: missing keywords", generation.ErrInvalidResponse)
	}

	return &domain.Metadata{
		Title:       title,
		Description: description,
		Keywords:    keywords,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
