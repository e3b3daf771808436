package extraction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

// FieldExtractor asks a text model for the classification fields.
type FieldExtractor struct {
	model    ports.TextModel
	timeout  time.Duration
	splitter ports.TextSplitter
}

func NewFieldExtractor(model ports.TextModel, timeout time.Duration) *FieldExtractor {
	return &FieldExtractor{model: model, timeout: timeout}
}

// WithSplitter makes Extract send long text in windows and merge the
// answers. Without a splitter the whole text goes into one prompt.
func (e *FieldExtractor) WithSplitter(s ports.TextSplitter) *FieldExtractor {
	e.splitter = s
	return e
}

// Extract returns the flattened field map. Any failure, including an answer
// that is not a JSON object, means the stage produced no data.
func (e *FieldExtractor) Extract(ctx context.Context, text string) (map[string]any, error) {
	if e.model == nil {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "extract fields", errors.New("no text backend configured"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInsufficientText, "extract fields", errors.New("empty input text"))
	}

	windows := []string{text}
	if e.splitter != nil {
		if split := e.splitter.Split(text); len(split) > 0 {
			windows = split
		}
	}
	if len(windows) == 1 {
		return e.extractWindow(ctx, windows[0])
	}

	// Earlier windows win; a null answer is filled by a later window.
	merged := map[string]any{}
	var firstErr error
	for _, window := range windows {
		fields, err := e.extractWindow(ctx, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for k, v := range fields {
			if cur, ok := merged[k]; !ok || cur == nil {
				merged[k] = v
			}
		}
	}
	if len(merged) == 0 {
		return nil, firstErr
	}
	return merged, nil
}

func (e *FieldExtractor) extractWindow(ctx context.Context, text string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}

	callCtx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.model.CompleteJSON(callCtx, FieldSystemPrompt, BuildFieldPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	return ParseFieldAnswer(raw)
}

var fieldStrategies = jsonStrategies(func(m map[string]any) bool {
	return m != nil
})

// ParseFieldAnswer decodes and flattens a field extraction answer.
func ParseFieldAnswer(raw string) (map[string]any, error) {
	decoded, _, ok := firstMatch(raw, fieldStrategies)
	if !ok {
		return nil, domain.WrapError(domain.ErrMalformedModelOutput, "parse field answer", errors.New("no JSON object in model answer"))
	}
	flat := Flatten(decoded)
	if len(flat) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedModelOutput, "parse field answer", errors.New("empty JSON object"))
	}
	return flat, nil
}

// Flatten lifts the keys of category sub-objects one level up. Objects stored
// under an allow-listed field key are values, not categories, and stay put.
// Top-level leaves win over keys of the same name inside a category.
func Flatten(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	var groups []string
	for k, v := range in {
		if _, nested := v.(map[string]any); nested {
			if _, isField := domain.LookupField(k); !isField {
				groups = append(groups, k)
				continue
			}
		}
		out[k] = v
	}
	sort.Strings(groups)
	for _, g := range groups {
		for k, v := range in[g].(map[string]any) {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}
