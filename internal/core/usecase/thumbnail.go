package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

type ThumbnailReport struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// ThumbnailUseCase renders missing first-page thumbnails for PDF uploads.
type ThumbnailUseCase struct {
	repo     ports.SpecificationRepository
	uploads  ports.FileStore
	media    ports.FileStore
	renderer ports.PageRenderer
	codec    ports.ImageCodec
	locker   ports.RunLocker
	logger   *slog.Logger
	now      func() time.Time
}

func NewThumbnailUseCase(
	repo ports.SpecificationRepository,
	uploads ports.FileStore,
	media ports.FileStore,
	renderer ports.PageRenderer,
	codec ports.ImageCodec,
	locker ports.RunLocker,
	logger *slog.Logger,
) *ThumbnailUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThumbnailUseCase{
		repo:     repo,
		uploads:  uploads,
		media:    media,
		renderer: renderer,
		codec:    codec,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
}

// Backfill processes every PDF specification without a thumbnail, at most
// concurrency at a time. Per-record failures are counted, not returned.
func (uc *ThumbnailUseCase) Backfill(ctx context.Context, concurrency int) (ThumbnailReport, error) {
	specs, err := uc.repo.ListMissingThumbnails(ctx)
	if err != nil {
		return ThumbnailReport{}, fmt.Errorf("list specifications without thumbnail: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, spec := range specs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := uc.generate(gctx, spec); err != nil {
				failed.Add(1)
				uc.logger.Warn("thumbnail_failed", "spec_id", spec.ID, "source_key", spec.SourceKey, "error", err)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := ThumbnailReport{Total: len(specs), Processed: int(processed.Load()), Errors: int(failed.Load())}
	uc.logger.Info("thumbnail_backfill_finished", "total", report.Total, "processed", report.Processed, "errors", report.Errors)
	return report, ctx.Err()
}

func (uc *ThumbnailUseCase) generate(ctx context.Context, spec *domain.Specification) error {
	if spec.MediaKind != domain.MediaPDF {
		return fmt.Errorf("media kind %q has no pages", spec.MediaKind)
	}
	page, err := uc.renderer.RenderFirstPage(ctx, uc.uploads.Path(spec.SourceKey))
	if err != nil {
		return fmt.Errorf("render first page: %w", err)
	}
	data, err := uc.codec.EncodePNG(uc.codec.Thumbnail(page))
	if err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	key := thumbnailKeyPrefix + spec.ID + ".png"
	if err := uc.media.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}

	if uc.locker != nil {
		unlock, err := uc.locker.Lock(ctx, "spec:"+spec.ID)
		if err != nil {
			return err
		}
		defer unlock()
	}
	current, err := uc.repo.GetByID(ctx, spec.ID)
	if err != nil {
		return fmt.Errorf("reload specification: %w", err)
	}
	current.ThumbnailRef = key
	current.UpdatedAt = uc.now()
	if err := uc.repo.Save(ctx, current); err != nil {
		return fmt.Errorf("save specification: %w", err)
	}
	return nil
}
