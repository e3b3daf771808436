package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

// IngestSpecificationUseCase accepts uploads and dispatches pipeline runs,
// inline when no queue is configured.
type IngestSpecificationUseCase struct {
	repo      ports.SpecificationRepository
	uploads   ports.FileStore
	queue     ports.MessageQueue
	processor ports.SpecificationProcessor
	logger    *slog.Logger
	now       func() time.Time
}

// NewIngestSpecificationUseCase wires the ingest flow. A nil queue means runs
// execute synchronously through processor.
func NewIngestSpecificationUseCase(
	repo ports.SpecificationRepository,
	uploads ports.FileStore,
	queue ports.MessageQueue,
	processor ports.SpecificationProcessor,
	logger *slog.Logger,
) *IngestSpecificationUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestSpecificationUseCase{
		repo:      repo,
		uploads:   uploads,
		queue:     queue,
		processor: processor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *IngestSpecificationUseCase) Upload(ctx context.Context, ownerID, filename string, body io.Reader) (*domain.Specification, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload specification", errors.New("filename is required"))
	}
	kind, ok := domain.MediaKindFromFilename(filename)
	if !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedMedia, "upload specification", fmt.Errorf("file %q", filepath.Base(filename)))
	}

	id := uuid.NewString()
	sourceKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	if err := uc.uploads.Save(ctx, sourceKey, body); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	spec := domain.NewSpecification(id, ownerID, filename, sourceKey, kind, uc.now())
	if err := uc.repo.Create(ctx, spec); err != nil {
		if delErr := uc.uploads.Delete(context.WithoutCancel(ctx), sourceKey); delErr != nil {
			uc.logger.Warn("orphan_upload_left", "source_key", sourceKey, "error", delErr)
		}
		return nil, fmt.Errorf("create specification: %w", err)
	}
	uc.logger.Info("specification_uploaded", "spec_id", id, "media_kind", kind, "source_key", sourceKey)

	return uc.dispatch(ctx, spec)
}

// Reprocess starts a new full run for an existing specification.
func (uc *IngestSpecificationUseCase) Reprocess(ctx context.Context, specID string) (*domain.Specification, error) {
	spec, err := uc.repo.GetByID(ctx, specID)
	if err != nil {
		return nil, fmt.Errorf("fetch specification by id: %w", err)
	}
	return uc.dispatch(ctx, spec)
}

// Async reports whether runs are handed to the queue.
func (uc *IngestSpecificationUseCase) Async() bool {
	return uc.queue != nil
}

func (uc *IngestSpecificationUseCase) dispatch(ctx context.Context, spec *domain.Specification) (*domain.Specification, error) {
	if uc.queue != nil {
		if err := uc.queue.PublishSpecification(ctx, spec.ID); err != nil {
			return nil, fmt.Errorf("publish processing request: %w", err)
		}
		return spec, nil
	}

	if _, err := uc.processor.ProcessByID(ctx, spec.ID); err != nil {
		return nil, fmt.Errorf("process specification: %w", err)
	}
	processed, err := uc.repo.GetByID(ctx, spec.ID)
	if err != nil {
		return nil, fmt.Errorf("reload specification: %w", err)
	}
	return processed, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "upload.bin"
	}
	return base
}
