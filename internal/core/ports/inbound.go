package ports

import (
	"context"
	"io"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

// SpecificationIngestor is the inbound contract for uploads and explicit re-runs.
type SpecificationIngestor interface {
	Upload(ctx context.Context, ownerID, filename string, body io.Reader) (*domain.Specification, error)
	Reprocess(ctx context.Context, id string) (*domain.Specification, error)
}

// SpecificationReader is the inbound read model for specification state.
type SpecificationReader interface {
	GetByID(ctx context.Context, id string) (*domain.Specification, error)
}

// SpecificationProcessor runs the extraction pipeline for one specification.
type SpecificationProcessor interface {
	ProcessByID(ctx context.Context, id string) (domain.RunReport, error)
}
