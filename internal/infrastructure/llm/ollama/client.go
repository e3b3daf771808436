package ollama

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/infrastructure/resilience"
)

// Client talks to a local Ollama server. It serves as TextModel and, with a
// multimodal model configured, as VisionModel.
type Client struct {
	baseURL     string
	textModel   string
	visionModel string
	httpClient  *http.Client
	exec        *resilience.Executor
}

func New(baseURL, textModel, visionModel string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		textModel:   textModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 300 * time.Second},
		exec:        exec,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, "ollama.generate_json", generateRequest{
		Model:   c.textModel,
		System:  systemPrompt,
		Prompt:  userPrompt,
		Format:  "json",
		Options: map[string]any{"temperature": 0.1},
	})
}

func (c *Client) AnalyzeImages(ctx context.Context, systemPrompt, userPrompt string, images []domain.EncodedImage) (string, error) {
	encoded := make([]string, 0, len(images))
	for _, img := range images {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(img.Data))
	}
	return c.generate(ctx, "ollama.vision", generateRequest{
		Model:   c.visionModel,
		System:  systemPrompt,
		Prompt:  userPrompt,
		Images:  encoded,
		Options: map[string]any{"temperature": 0.1},
	})
}

func (c *Client) generate(ctx context.Context, operation string, req generateRequest) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	err := c.exec.Execute(ctx, operation, func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", req, &response, operation)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return "", resilience.WrapModelError(operation, err)
	}
	return strings.TrimSpace(response.Response), nil
}
