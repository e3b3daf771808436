package extraction

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

const DefaultMaxVisionImages = 3

// VisualAnalyzer asks a vision model to read the garment in the top-ranked
// images. It never fails: backend problems yield domain.NoAnalysis.
type VisualAnalyzer struct {
	model     ports.VisionModel
	codec     ports.ImageCodec
	maxImages int
	timeout   time.Duration
	logger    *slog.Logger
}

func NewVisualAnalyzer(model ports.VisionModel, codec ports.ImageCodec, maxImages int, timeout time.Duration, logger *slog.Logger) *VisualAnalyzer {
	if maxImages <= 0 {
		maxImages = DefaultMaxVisionImages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisualAnalyzer{model: model, codec: codec, maxImages: maxImages, timeout: timeout, logger: logger}
}

func (a *VisualAnalyzer) Analyze(ctx context.Context, images []domain.ImageCandidate) domain.VisualAnalysis {
	if len(images) == 0 {
		return domain.NoAnalysis()
	}
	if a.model == nil {
		a.logger.Info("visual_analysis_unavailable", "reason", "no vision backend configured")
		return domain.NoAnalysis()
	}
	if len(images) > a.maxImages {
		images = images[:a.maxImages]
	}

	encoded := make([]domain.EncodedImage, 0, len(images))
	for _, img := range images {
		e, err := a.codec.EncodeForModel(img.Image)
		if err != nil {
			a.logger.Warn("image_encode_failed", "page", img.Page, "name", img.Name, "error", err)
			continue
		}
		encoded = append(encoded, e)
	}
	if len(encoded) == 0 {
		return domain.NoAnalysis()
	}

	if err := ctx.Err(); err != nil {
		a.logger.Warn("visual_analysis_unavailable", "reason", "cancelled", "error", err)
		return domain.NoAnalysis()
	}
	callCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.model.AnalyzeImages(callCtx, VisionSystemPrompt, BuildVisionPrompt(len(encoded)), encoded)
	if err != nil {
		a.logger.Warn("visual_analysis_unavailable", "reason", "backend error", "error", err)
		return domain.NoAnalysis()
	}

	return ParseVisualAnalysis(raw)
}

var visualStrategies = jsonStrategies(func(g *domain.GarmentAnalysis) bool {
	return g != nil && g.Populated()
})

// ParseVisualAnalysis reads a vision answer as the schema object when
// possible and keeps it as prose otherwise.
func ParseVisualAnalysis(raw string) domain.VisualAnalysis {
	if garment, _, ok := firstMatch(raw, visualStrategies); ok {
		return domain.StructuredAnalysis(garment, raw)
	}
	if prose := strings.TrimSpace(raw); prose != "" {
		return domain.ProseAnalysis(prose)
	}
	return domain.NoAnalysis()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
