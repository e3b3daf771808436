// Package vertex serves the text and vision model ports with Gemini on
// Vertex AI.
package vertex

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/infrastructure/resilience"
)

type Client struct {
	base  *genai.Client
	model string
	exec  *resilience.Executor
}

func New(ctx context.Context, projectID, location, model string, exec *resilience.Executor) (*Client, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("vertex: project and location are required")
	}
	if model == "" {
		model = "gemini-1.5-pro"
	}
	base, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Client{base: base, model: model, exec: exec}, nil
}

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

func (c *Client) generativeModel(systemPrompt string, jsonOutput bool) *genai.GenerativeModel {
	m := c.base.GenerativeModel(c.model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	m.GenerationConfig = genai.GenerationConfig{Temperature: genai.Ptr[float32](0.1)}
	if jsonOutput {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	return m
}

func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, "vertex.generate_json", c.generativeModel(systemPrompt, true), genai.Text(userPrompt))
}

func (c *Client) AnalyzeImages(ctx context.Context, systemPrompt, userPrompt string, images []domain.EncodedImage) (string, error) {
	parts := make([]genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.ImageData(imageFormat(img.MIMEType), img.Data))
	}
	parts = append(parts, genai.Text(userPrompt))
	return c.generate(ctx, "vertex.vision", c.generativeModel(systemPrompt, false), parts...)
}

func (c *Client) generate(ctx context.Context, operation string, model *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	var text string
	err := c.exec.Execute(ctx, operation, func(callCtx context.Context) error {
		resp, err := model.GenerateContent(callCtx, parts...)
		if err != nil {
			return err
		}
		text = responseText(resp)
		return nil
	}, nil)
	if err != nil {
		return "", resilience.WrapModelError(operation, err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrMalformedModelOutput, operation, fmt.Errorf("empty candidate"))
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func imageFormat(mime string) string {
	format := strings.TrimPrefix(strings.ToLower(mime), "image/")
	if format == "" || format == "jpg" {
		return "jpeg"
	}
	return format
}
