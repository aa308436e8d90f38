// Package gemini transcribes page images with a Gemini model on Vertex AI.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// Prompt is the instruction sent alongside every page image.
const Prompt = "Extract and transcribe the text content from this page.\n" +
	"Maintain the original structure but do not add any annotations."

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// Config selects the Vertex AI project, region and model.
type Config struct {
	ProjectID string
	Region    string
	Model     string
}

// Waiter throttles outbound requests.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client is an archive.Transcriber backed by Gemini.
type Client struct {
	base    *genai.Client
	model   generator
	limiter Waiter
	key     string
}

var _ archive.Transcriber = (*Client)(nil)

// New creates a Vertex AI client and configures the transcription model.
func New(ctx context.Context, cfg Config, limiter Waiter) (*Client, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("gemini: project id and region cannot be empty")
	}
	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := base.GenerativeModel(name)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	c := newWithModel(model, limiter)
	c.base = base
	c.key = "gemini:" + name
	return c, nil
}

func newWithModel(model generator, limiter Waiter) *Client {
	return &Client{model: model, limiter: limiter, key: "gemini"}
}

// Transcribe sends one page image and returns the model's text.
// A response without text, or one stopped for recitation or safety, is archive.ErrEmptyResponse.
func (c *Client) Transcribe(ctx context.Context, image []byte, mimeType string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.key); err != nil {
			return "", err
		}
	}
	resp, err := c.model.GenerateContent(ctx, genai.ImageData(imageFormat(mimeType), image), genai.Text(Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := extractText(resp)
	if text == "" {
		return "", archive.ErrEmptyResponse
	}
	return text, nil
}

// Close releases the underlying Vertex AI client.
func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonRecitation, genai.FinishReasonSafety:
		return ""
	}
	if candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// imageFormat turns "image/jpeg" into the "jpeg" form genai.ImageData expects.
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	if format == "" || format == "jpg" {
		return "jpeg"
	}
	return format
}
