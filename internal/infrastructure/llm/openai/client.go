package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	defaultMaxTokens = 2000
)

type Config struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	ImageModel  string
	ImageSize   string
}

// Client speaks the OpenAI-compatible chat and image endpoints. It serves
// as VisionModel, TextModel and ImageModel.
type Client struct {
	cfg        Config
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "1024x1024"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 180 * time.Second},
		exec:       exec,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: c.cfg.TextModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:      defaultMaxTokens,
		Temperature:    0.1,
		ResponseFormat: map[string]any{"type": "json_object"},
	}
	return c.chat(ctx, "openai.chat_json", req)
}

func (c *Client) AnalyzeImages(ctx context.Context, systemPrompt, userPrompt string, images []domain.EncodedImage) (string, error) {
	if len(images) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "openai.vision", fmt.Errorf("no images"))
	}
	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{Type: "text", Text: userPrompt})
	for _, img := range images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURI(img), Detail: "high"},
		})
	}
	req := chatRequest{
		Model: c.cfg.VisionModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		MaxTokens:   4000,
		Temperature: 0.1,
	}
	return c.chat(ctx, "openai.vision", req)
}

func (c *Client) chat(ctx context.Context, operation string, req chatRequest) (string, error) {
	var resp chatResponse
	err := c.exec.Execute(ctx, operation, func(callCtx context.Context) error {
		resp = chatResponse{}
		return c.postJSON(callCtx, "/chat/completions", req, &resp, operation)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return "", resilience.WrapModelError(operation, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrMalformedModelOutput, operation, fmt.Errorf("no choices in response"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
	N      int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateImage returns the bytes of the first generated image, whether the
// backend answered inline (b64_json) or with a download URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	const operation = "openai.image"
	req := imageRequest{Model: c.cfg.ImageModel, Prompt: prompt, Size: c.cfg.ImageSize, N: 1}

	var data []byte
	err := c.exec.Execute(ctx, operation, func(callCtx context.Context) error {
		var resp imageResponse
		if err := c.postJSON(callCtx, "/images/generations", req, &resp, operation); err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return domain.WrapError(domain.ErrMalformedModelOutput, operation, fmt.Errorf("no image in response"))
		}
		item := resp.Data[0]
		switch {
		case item.B64JSON != "":
			decoded, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				return domain.WrapError(domain.ErrMalformedModelOutput, operation, err)
			}
			data = decoded
		case item.URL != "":
			fetched, err := c.getBytes(callCtx, item.URL, operation)
			if err != nil {
				return err
			}
			data = fetched
		default:
			return domain.WrapError(domain.ErrMalformedModelOutput, operation, fmt.Errorf("image entry has neither data nor url"))
		}
		return nil
	}, resilience.ClassifyHTTP)
	if err != nil {
		if domain.IsKind(err, domain.ErrMalformedModelOutput) {
			return nil, err
		}
		return nil, resilience.WrapModelError(operation, err)
	}
	return data, nil
}

func dataURI(img domain.EncodedImage) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
