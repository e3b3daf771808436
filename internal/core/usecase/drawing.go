package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

// DrawingGenerator renders a flat sketch and stores it under a fresh key. The
// reference is only returned once the store accepted the full image.
type DrawingGenerator struct {
	model     ports.ImageModel
	store     ports.DrawingStore
	keyPrefix string
	timeout   time.Duration
	newToken  func() string
}

// NewDrawingGenerator builds a generator writing under keyPrefix, which is
// empty for a local drawing directory and "technical-drawings/" for object
// stores.
func NewDrawingGenerator(model ports.ImageModel, store ports.DrawingStore, keyPrefix string, timeout time.Duration) *DrawingGenerator {
	return &DrawingGenerator{
		model:     model,
		store:     store,
		keyPrefix: keyPrefix,
		timeout:   timeout,
		newToken:  func() string { return uuid.NewString()[:8] },
	}
}

func (g *DrawingGenerator) Generate(ctx context.Context, specID, prompt string) (domain.DrawingRef, error) {
	if g.model == nil {
		return domain.DrawingRef{}, domain.WrapError(domain.ErrModelUnavailable, "generate drawing", errors.New("no image backend configured"))
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	data, err := g.model.GenerateImage(callCtx, prompt)
	if err != nil {
		return domain.DrawingRef{}, domain.WrapError(domain.ErrDrawingGeneration, "generate drawing", err)
	}
	if len(data) == 0 {
		return domain.DrawingRef{}, domain.WrapError(domain.ErrDrawingGeneration, "generate drawing", errors.New("empty image"))
	}

	key := fmt.Sprintf("%s%s_%s.png", g.keyPrefix, specID, g.newToken())
	ref, err := g.store.Put(ctx, key, data, "image/png")
	if err != nil {
		return domain.DrawingRef{}, domain.WrapError(domain.ErrDrawingGeneration, "store drawing", err)
	}
	return ref, nil
}
