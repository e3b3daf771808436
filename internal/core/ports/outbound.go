package ports

import (
	"context"
	"image"
	"io"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

// SpecificationRepository persists specification records. Save is always a
// full-record update.
type SpecificationRepository interface {
	Create(ctx context.Context, spec *domain.Specification) error
	GetByID(ctx context.Context, id string) (*domain.Specification, error)
	Save(ctx context.Context, spec *domain.Specification) error
	ListWithDrawings(ctx context.Context) ([]*domain.Specification, error)
	ListMissingThumbnails(ctx context.Context) ([]*domain.Specification, error)
}

// FileStore keeps uploads and thumbnails on a filesystem the extractors can read.
type FileStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) string
	Delete(ctx context.Context, key string) error
}

// DrawingStore persists generated drawings and reports the reference it wrote.
type DrawingStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (domain.DrawingRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// MessageQueue publishes/consumes processing requests.
type MessageQueue interface {
	PublishSpecification(ctx context.Context, specID string) error
	SubscribeSpecifications(ctx context.Context, handler func(context.Context, string) error) error
}

// ContentExtractor pulls plain text and decodable images out of a PDF.
type ContentExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
	ExtractImages(ctx context.Context, path string) ([]domain.ImageCandidate, error)
}

// ImageLoader reads an uploaded photograph.
type ImageLoader interface {
	Load(ctx context.Context, path string) (domain.ImageCandidate, error)
}

// ImageCodec prepares images for model transport and storage.
type ImageCodec interface {
	EncodeForModel(img image.Image) (domain.EncodedImage, error)
	EncodePNG(img image.Image) ([]byte, error)
	Thumbnail(img image.Image) image.Image
}

// PageRenderer rasterizes the first page of a PDF.
type PageRenderer interface {
	RenderFirstPage(ctx context.Context, path string) (image.Image, error)
}

// VisionModel answers a prompt about a set of images.
type VisionModel interface {
	AnalyzeImages(ctx context.Context, systemPrompt, userPrompt string, images []domain.EncodedImage) (string, error)
}

// TextModel answers a prompt with a JSON object.
type TextModel interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ImageModel renders an image from a prompt.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// GarmentAnalyzer produces the visual analysis of ranked images.
type GarmentAnalyzer interface {
	Analyze(ctx context.Context, images []domain.ImageCandidate) domain.VisualAnalysis
}

// FieldExtractor turns free text into classification field values.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (map[string]any, error)
}

// TextSplitter cuts long text into overlapping windows that each fit a
// single model prompt.
type TextSplitter interface {
	Split(text string) []string
}

// DrawingGenerator renders and stores a technical drawing.
type DrawingGenerator interface {
	Generate(ctx context.Context, specID, prompt string) (domain.DrawingRef, error)
}

// RunLocker serializes pipeline runs for the same specification.
type RunLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// PipelineObserver receives pipeline telemetry.
type PipelineObserver interface {
	StartRun()
	FinishRun(status domain.ProcessingStatus, duration float64)
	ObserveStage(stage string, duration float64)
	FieldRejected(reason domain.RejectReason)
	VisualAnalysis(mode domain.AnalysisMode)
	SketchFinished(status domain.SketchStatus)
}
