package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/extraction"
	"github.com/kirillkom/techsheet/internal/core/ports"
	"github.com/kirillkom/techsheet/internal/core/sketch"
)

const (
	stageTextExtraction  = "text_extraction"
	stageFieldExtraction = "field_extraction"
	stageImageExtraction = "image_extraction"
	stageVisualAnalysis  = "visual_analysis"
	stageMedia           = "media"
	stageDrawing         = "drawing_generation"
)

const (
	thumbnailKeyPrefix    = "thumbnails/"
	productPhotoKeyPrefix = "product-photos/"
)

// ProcessDeps groups the collaborators of a pipeline run. Renderer, Drawings,
// Observer and Logger may be nil.
type ProcessDeps struct {
	Repo      ports.SpecificationRepository
	Uploads   ports.FileStore
	Media     ports.FileStore
	Extractor ports.ContentExtractor
	Images    ports.ImageLoader
	Codec     ports.ImageCodec
	Renderer  ports.PageRenderer
	Analyzer  ports.GarmentAnalyzer
	Fields    ports.FieldExtractor
	Drawings  ports.DrawingGenerator
	Locker    ports.RunLocker
	Observer  ports.PipelineObserver
	Logger    *slog.Logger
}

type ProcessSpecificationUseCase struct {
	repo      ports.SpecificationRepository
	uploads   ports.FileStore
	media     ports.FileStore
	extractor ports.ContentExtractor
	images    ports.ImageLoader
	codec     ports.ImageCodec
	renderer  ports.PageRenderer
	analyzer  ports.GarmentAnalyzer
	fields    ports.FieldExtractor
	drawings  ports.DrawingGenerator
	locker    ports.RunLocker
	observer  ports.PipelineObserver
	logger    *slog.Logger

	minTextLength int
	now           func() time.Time
}

func NewProcessSpecificationUseCase(deps ProcessDeps, minTextLength int) *ProcessSpecificationUseCase {
	uc := &ProcessSpecificationUseCase{
		repo:          deps.Repo,
		uploads:       deps.Uploads,
		media:         deps.Media,
		extractor:     deps.Extractor,
		images:        deps.Images,
		codec:         deps.Codec,
		renderer:      deps.Renderer,
		analyzer:      deps.Analyzer,
		fields:        deps.Fields,
		drawings:      deps.Drawings,
		locker:        deps.Locker,
		observer:      deps.Observer,
		logger:        deps.Logger,
		minTextLength: minTextLength,
		now:           time.Now,
	}
	if uc.observer == nil {
		uc.observer = noopObserver{}
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	if uc.minTextLength < 1 {
		uc.minTextLength = 1
	}
	return uc
}

// pipelineRun is the mutable state of one invocation.
type pipelineRun struct {
	spec     *domain.Specification
	report   domain.RunReport
	logger   *slog.Logger
	path     string
	ranked   []domain.ImageCandidate
	analysis domain.VisualAnalysis
}

// ProcessByID runs the whole pipeline for one specification. Stage failures
// end up in the record status; only lock and persistence failures are
// returned.
func (uc *ProcessSpecificationUseCase) ProcessByID(ctx context.Context, specID string) (domain.RunReport, error) {
	report := domain.RunReport{SpecID: specID, RunID: uuid.NewString(), AnalysisMode: domain.AnalysisNone}

	unlock, err := uc.locker.Lock(ctx, "spec:"+specID)
	if err != nil {
		return report, fmt.Errorf("lock specification: %w", err)
	}
	defer unlock()

	spec, err := uc.repo.GetByID(ctx, specID)
	if err != nil {
		return report, fmt.Errorf("fetch specification by id: %w", err)
	}

	run := &pipelineRun{
		spec:     spec,
		report:   report,
		logger:   uc.logger.With("spec_id", specID, "run_id", report.RunID),
		path:     uc.uploads.Path(spec.SourceKey),
		analysis: domain.NoAnalysis(),
	}

	spec.BeginRun()
	spec.UpdatedAt = uc.now()
	if err := uc.repo.Save(ctx, spec); err != nil {
		return run.report, fmt.Errorf("set status=processing: %w", err)
	}

	started := uc.now()
	uc.observer.StartRun()
	run.logger.Info("pipeline_started", "media_kind", spec.MediaKind, "source_filename", spec.SourceFilename)

	// the terminal status is persisted even when the caller went away
	persistCtx := context.WithoutCancel(ctx)

	failure := uc.extract(ctx, run)
	status := domain.StatusCompleted
	message := ""
	if failure != nil {
		status = domain.StatusError
		message = failure.Error()
	} else {
		uc.storeMedia(ctx, run)
	}

	spec.Finish(status, message)
	if status == domain.StatusCompleted && uc.drawings != nil {
		spec.SketchStatus = domain.SketchProcessing
	} else {
		spec.SketchStatus = domain.SketchNotNeeded
	}
	spec.UpdatedAt = uc.now()
	if err := uc.repo.Save(persistCtx, spec); err != nil {
		uc.observer.FinishRun(domain.StatusError, uc.since(started))
		return uc.finishReport(run), fmt.Errorf("set status=%s: %w", status, err)
	}

	if spec.SketchStatus == domain.SketchProcessing {
		uc.generateDrawing(ctx, run)
		spec.UpdatedAt = uc.now()
		if err := uc.repo.Save(persistCtx, spec); err != nil {
			uc.observer.FinishRun(status, uc.since(started))
			return uc.finishReport(run), fmt.Errorf("set sketch status=%s: %w", spec.SketchStatus, err)
		}
	}
	uc.observer.SketchFinished(spec.SketchStatus)

	duration := uc.since(started)
	uc.observer.FinishRun(status, duration)
	out := uc.finishReport(run)
	run.logger.Info("pipeline_finished",
		"processing_status", out.Status,
		"sketch_status", out.SketchStatus,
		"analysis_mode", out.AnalysisMode,
		"fields_applied", out.FieldsApplied,
		"fields_rejected", out.FieldsRejected,
		"images_found", out.ImagesFound,
		"duration_ms", int64(duration*1000),
	)
	return out, nil
}

func (uc *ProcessSpecificationUseCase) finishReport(run *pipelineRun) domain.RunReport {
	r := run.report
	r.Status = run.spec.ProcessingStatus
	r.SketchStatus = run.spec.SketchStatus
	r.AnalysisMode = run.analysis.Mode
	r.ImagesFound = len(run.ranked)
	r.Error = run.spec.LastError
	return r
}

// extract runs the media-specific branch and returns the reason the run
// failed, nil when the fields were extracted.
func (uc *ProcessSpecificationUseCase) extract(ctx context.Context, run *pipelineRun) error {
	switch run.spec.MediaKind {
	case domain.MediaPDF:
		return uc.extractFromPDF(ctx, run)
	case domain.MediaImage:
		return uc.extractFromImage(ctx, run)
	default:
		return domain.WrapError(domain.ErrUnsupportedMedia, "process specification", fmt.Errorf("media kind %q", run.spec.MediaKind))
	}
}

func (uc *ProcessSpecificationUseCase) extractFromPDF(ctx context.Context, run *pipelineRun) error {
	started := uc.now()
	text, err := uc.extractor.ExtractText(ctx, run.path)
	uc.observer.ObserveStage(stageTextExtraction, uc.since(started))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("extract text: %w", ctxErr)
		}
		run.logger.Warn("text_extraction_degraded", "error", err, "chars", utf8.RuneCountInString(text))
	}
	run.spec.RawExtractedText = text

	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < uc.minTextLength {
		run.logger.Warn("text_insufficient", "chars", n, "min_chars", uc.minTextLength)
		return domain.WrapError(domain.ErrInsufficientText, "extract text", fmt.Errorf("%d characters, need %d", n, uc.minTextLength))
	}

	if err := uc.applyFields(ctx, run, text); err != nil {
		return err
	}

	uc.analyzeImages(ctx, run, uc.extractImages(ctx, run))
	if filled := extraction.EnrichFromAnalysis(&run.spec.Fields, run.analysis); len(filled) > 0 {
		run.report.FieldsApplied += len(filled)
		run.logger.Info("fields_enriched", "fields", filled)
	}
	return nil
}

// extractFromImage never runs text extraction. A structured analysis fills
// the fields directly; prose is handed to the field extractor as text.
func (uc *ProcessSpecificationUseCase) extractFromImage(ctx context.Context, run *pipelineRun) error {
	started := uc.now()
	candidate, err := uc.images.Load(ctx, run.path)
	uc.observer.ObserveStage(stageImageExtraction, uc.since(started))
	if err != nil {
		run.logger.Warn("image_decode_failed", "error", err)
		return fmt.Errorf("load uploaded image: %w", err)
	}
	run.ranked = []domain.ImageCandidate{candidate}

	uc.analyzeImages(ctx, run, run.ranked)
	switch run.analysis.Mode {
	case domain.AnalysisStructured:
		filled := extraction.EnrichFromAnalysis(&run.spec.Fields, run.analysis)
		run.report.FieldsApplied += len(filled)
		return nil
	case domain.AnalysisProse:
		return uc.applyFields(ctx, run, run.analysis.Raw)
	default:
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("analyze image: %w", err)
		}
		return domain.WrapError(domain.ErrModelUnavailable, "analyze image", errors.New("no visual analysis for image upload"))
	}
}

func (uc *ProcessSpecificationUseCase) applyFields(ctx context.Context, run *pipelineRun, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("extract fields: %w", err)
	}

	started := uc.now()
	values, err := uc.fields.Extract(ctx, text)
	uc.observer.ObserveStage(stageFieldExtraction, uc.since(started))
	if err == nil && len(values) == 0 {
		err = domain.WrapError(domain.ErrMalformedModelOutput, "extract fields", errors.New("model answer has no fields"))
	}
	if err != nil {
		run.logger.Error("field_extraction_failed", "error", err)
		return err
	}

	merge := domain.ApplyModelFields(&run.spec.Fields, values)
	for _, rejected := range merge.Rejected {
		run.logger.Warn("field_skipped", "field", rejected.Key, "value", rejected.Value, "reason", rejected.Reason)
		uc.observer.FieldRejected(rejected.Reason)
	}
	run.report.FieldsApplied += len(merge.Applied)
	run.report.FieldsRejected += len(merge.Rejected)
	return nil
}

func (uc *ProcessSpecificationUseCase) extractImages(ctx context.Context, run *pipelineRun) []domain.ImageCandidate {
	started := uc.now()
	candidates, err := uc.extractor.ExtractImages(ctx, run.path)
	uc.observer.ObserveStage(stageImageExtraction, uc.since(started))
	if err != nil {
		run.logger.Warn("image_decode_failed", "error", err, "decoded", len(candidates))
	}
	run.ranked = domain.RankImages(candidates)
	return run.ranked
}

func (uc *ProcessSpecificationUseCase) analyzeImages(ctx context.Context, run *pipelineRun, ranked []domain.ImageCandidate) {
	if len(ranked) == 0 || uc.analyzer == nil {
		return
	}
	started := uc.now()
	run.analysis = uc.analyzer.Analyze(ctx, ranked)
	uc.observer.ObserveStage(stageVisualAnalysis, uc.since(started))
	uc.observer.VisualAnalysis(run.analysis.Mode)
	if run.analysis.Mode == domain.AnalysisProse {
		run.logger.Info("visual_analysis_fallback", "chars", utf8.RuneCountInString(run.analysis.Raw))
	}
}

// storeMedia writes the product photo and the thumbnail. Neither affects the
// run status.
func (uc *ProcessSpecificationUseCase) storeMedia(ctx context.Context, run *pipelineRun) {
	if uc.media == nil || uc.codec == nil {
		return
	}
	started := uc.now()
	defer func() { uc.observer.ObserveStage(stageMedia, uc.since(started)) }()

	spec := run.spec
	if len(run.ranked) > 0 {
		key := productPhotoKeyPrefix + spec.ID + ".png"
		if err := uc.savePNG(ctx, key, run.ranked[0].Image); err != nil {
			run.logger.Warn("product_photo_failed", "error", err)
		} else {
			spec.ProductPhotoRef = key
		}
	}

	var page image.Image
	switch {
	case spec.MediaKind == domain.MediaImage && len(run.ranked) > 0:
		page = run.ranked[0].Image
	case spec.MediaKind == domain.MediaPDF && uc.renderer != nil:
		rendered, err := uc.renderer.RenderFirstPage(ctx, run.path)
		if err != nil {
			run.logger.Warn("thumbnail_failed", "error", err)
			return
		}
		page = rendered
	default:
		return
	}
	key := thumbnailKeyPrefix + spec.ID + ".png"
	if err := uc.savePNG(ctx, key, uc.codec.Thumbnail(page)); err != nil {
		run.logger.Warn("thumbnail_failed", "error", err)
		return
	}
	spec.ThumbnailRef = key
}

func (uc *ProcessSpecificationUseCase) savePNG(ctx context.Context, key string, img image.Image) error {
	data, err := uc.codec.EncodePNG(img)
	if err != nil {
		return err
	}
	return uc.media.Save(ctx, key, bytes.NewReader(data))
}

// generateDrawing leaves the previous drawing reference untouched on failure.
func (uc *ProcessSpecificationUseCase) generateDrawing(ctx context.Context, run *pipelineRun) {
	spec := run.spec
	prompt := sketch.Compose(spec, run.analysis)
	run.logger.Debug("drawing_prompt_composed", "template", prompt.Template, "chars", len(prompt.Text))

	if err := ctx.Err(); err != nil {
		run.logger.Warn("drawing_generation_failed", "error", err)
		spec.SketchStatus = domain.SketchError
		return
	}

	started := uc.now()
	ref, err := uc.drawings.Generate(ctx, spec.ID, prompt.Text)
	uc.observer.ObserveStage(stageDrawing, uc.since(started))
	if err == nil {
		err = ref.Valid()
	}
	if err != nil {
		run.logger.Warn("drawing_generation_failed", "template", prompt.Template, "error", err)
		spec.SketchStatus = domain.SketchError
		return
	}
	spec.Drawing = &ref
	spec.SketchStatus = domain.SketchCompleted
	run.logger.Info("drawing_generated", "template", prompt.Template, "kind", ref.Kind, "ref", ref.Value)
}

func (uc *ProcessSpecificationUseCase) since(t time.Time) float64 {
	return uc.now().Sub(t).Seconds()
}

type noopObserver struct{}

func (noopObserver) StartRun()                                  {}
func (noopObserver) FinishRun(domain.ProcessingStatus, float64) {}
func (noopObserver) ObserveStage(string, float64)               {}
func (noopObserver) FieldRejected(domain.RejectReason)          {}
func (noopObserver) VisualAnalysis(domain.AnalysisMode)         {}
func (noopObserver) SketchFinished(domain.SketchStatus)         {}
