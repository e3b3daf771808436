package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/extraction"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

const sheetText = "REF: X123, Coleção: Verão 2025, Busto: 92 cm"

type textModelFake struct {
	answer string
	calls  int
}

func (f *textModelFake) CompleteJSON(context.Context, string, string) (string, error) {
	f.calls++
	return f.answer, nil
}

type visionModelFake struct {
	answer string
	calls  int
}

func (f *visionModelFake) AnalyzeImages(context.Context, string, string, []domain.EncodedImage) (string, error) {
	f.calls++
	return f.answer, nil
}

type pipelineHarness struct {
	repo      *specRepoFake
	uploads   *fileStoreFake
	media     *fileStoreFake
	extractor *contentExtractorFake
	loader    *imageLoaderFake
	renderer  *rendererFake
	analyzer  ports.GarmentAnalyzer
	fields    ports.FieldExtractor
	drawings  *drawingGeneratorFake
	noDrawing bool
	locker    *lockerFake
	observer  *observerFake
}

func newPipelineHarness(spec *domain.Specification) *pipelineHarness {
	return &pipelineHarness{
		repo:      newSpecRepoFake(spec),
		uploads:   newFileStoreFake(),
		media:     newFileStoreFake(),
		extractor: &contentExtractorFake{text: sheetText},
		loader:    &imageLoaderFake{candidate: grayCandidate(64, 48)},
		renderer:  &rendererFake{},
		analyzer:  &analyzerFake{result: domain.NoAnalysis()},
		fields:    &fieldExtractorFake{values: map[string]any{"ref_souq": "X123"}},
		drawings:  &drawingGeneratorFake{ref: domain.StorageKey("technical-drawings/spec-1_abcd.png")},
		locker:    &lockerFake{},
		observer:  &observerFake{},
	}
}

func (h *pipelineHarness) useCase() *ProcessSpecificationUseCase {
	deps := ProcessDeps{
		Repo:      h.repo,
		Uploads:   h.uploads,
		Media:     h.media,
		Extractor: h.extractor,
		Images:    h.loader,
		Codec:     codecFake{},
		Renderer:  h.renderer,
		Analyzer:  h.analyzer,
		Fields:    h.fields,
		Locker:    h.locker,
		Observer:  h.observer,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if !h.noDrawing {
		deps.Drawings = h.drawings
	}
	return NewProcessSpecificationUseCase(deps, 10)
}

func pdfSpec() *domain.Specification {
	return domain.NewSpecification("spec-1", "owner-1", "ficha.pdf", "spec-1_ficha.pdf", domain.MediaPDF, time.Unix(0, 0))
}

func imageSpec() *domain.Specification {
	return domain.NewSpecification("spec-1", "owner-1", "foto.jpg", "spec-1_foto.jpg", domain.MediaImage, time.Unix(0, 0))
}

func fieldValue(spec domain.Specification, key string) string {
	def, _ := domain.LookupField(key)
	return def.Get(&spec.Fields)
}

func TestProcessPDFExtractsNestedFieldAnswer(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	model := &textModelFake{answer: "```json\n" + `{
		"identificacao": {"ref_souq": "X123", "collection": "Verão 2025"},
		"medidas": {"bust": "92 cm", "waist": null}
	}` + "\n```"}
	h.fields = extraction.NewFieldExtractor(model, time.Second)

	report, err := h.useCase().ProcessByID(context.Background(), "spec-1")
	if err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.ProcessingStatus, got.LastError)
	}
	for key, want := range map[string]string{"ref_souq": "X123", "collection": "Verão 2025", "bust": "92 cm", "waist": ""} {
		if v := fieldValue(got, key); v != want {
			t.Fatalf("field %s: expected %q, got %q", key, want, v)
		}
	}
	if got.RawExtractedText != sheetText {
		t.Fatalf("expected raw text to be kept, got %q", got.RawExtractedText)
	}
	if report.FieldsApplied != 3 || report.Status != domain.StatusCompleted {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got.SketchStatus != domain.SketchCompleted || got.Drawing == nil {
		t.Fatalf("expected a completed drawing, got %s %+v", got.SketchStatus, got.Drawing)
	}
	if !strings.Contains(h.drawings.prompt, "Bust") {
		t.Fatalf("expected the dimensioned template with the bust measurement, got:\n%s", h.drawings.prompt)
	}
}

func TestProcessEmptyPDFEndsInErrorWithoutFieldCall(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	h.extractor = &contentExtractorFake{textErr: domain.ErrDecode}
	fields := &fieldExtractorFake{values: map[string]any{"ref_souq": "X123"}}
	h.fields = fields

	report, err := h.useCase().ProcessByID(context.Background(), "spec-1")
	if err != nil {
		t.Fatalf("stage failures must not be returned, got %v", err)
	}

	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusError {
		t.Fatalf("expected error status, got %s", got.ProcessingStatus)
	}
	if got.RawExtractedText != "" {
		t.Fatalf("expected empty raw text, got %q", got.RawExtractedText)
	}
	if fields.calls != 0 {
		t.Fatalf("expected no field extraction call, got %d", fields.calls)
	}
	if h.extractor.imageCalls != 0 || h.drawings.calls != 0 {
		t.Fatalf("expected the run to stop after text extraction")
	}
	if got.SketchStatus != domain.SketchNotNeeded {
		t.Fatalf("expected sketch not_needed, got %s", got.SketchStatus)
	}
	if !strings.Contains(got.LastError, domain.ErrInsufficientText.Error()) {
		t.Fatalf("expected insufficient text diagnostic, got %q", got.LastError)
	}
	if report.Status != domain.StatusError {
		t.Fatalf("unexpected report status %s", report.Status)
	}
}

func TestProcessShortTextIsInsufficient(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	h.extractor = &contentExtractorFake{text: "  REF  "}
	fields := &fieldExtractorFake{}
	h.fields = fields

	if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusError || fields.calls != 0 {
		t.Fatalf("expected error without field call, got %s calls=%d", got.ProcessingStatus, fields.calls)
	}
	if got.RawExtractedText != "  REF  " {
		t.Fatalf("expected the short text to be stored, got %q", got.RawExtractedText)
	}
}

func TestProcessFieldExtractionFailureIsTerminal(t *testing.T) {
	cases := []struct {
		name   string
		fields *fieldExtractorFake
	}{
		{name: "backend error", fields: &fieldExtractorFake{err: domain.WrapError(domain.ErrModelUnavailable, "extract fields", errors.New("503"))}},
		{name: "malformed answer", fields: &fieldExtractorFake{err: domain.ErrMalformedModelOutput}},
		{name: "empty object", fields: &fieldExtractorFake{values: map[string]any{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newPipelineHarness(pdfSpec())
			h.fields = tc.fields

			if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := h.repo.get("spec-1")
			if got.ProcessingStatus != domain.StatusError {
				t.Fatalf("expected error, got %s", got.ProcessingStatus)
			}
			if h.extractor.imageCalls != 0 {
				t.Fatalf("expected no image extraction after field failure")
			}
			if got.SketchStatus != domain.SketchNotNeeded || h.drawings.calls != 0 {
				t.Fatalf("expected no drawing for failed run")
			}
		})
	}
}

func TestProcessSkipsUnknownKeysAndInvalidDates(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	h.fields = &fieldExtractorFake{values: map[string]any{
		"bogus_field":              "x",
		"pilot_delivery_date":      "15/03/2025",
		"tech_sheet_delivery_date": "2025-02-28",
		"ref_souq":                 "X123",
	}}

	report, err := h.useCase().ProcessByID(context.Background(), "spec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusCompleted {
		t.Fatalf("invalid values must not fail the run, got %s", got.ProcessingStatus)
	}
	if got.PilotDeliveryDate != nil {
		t.Fatalf("expected invalid date to stay unset, got %q", *got.PilotDeliveryDate)
	}
	if fieldValue(got, "tech_sheet_delivery_date") != "2025-02-28" {
		t.Fatalf("expected valid date to be stored")
	}
	if report.FieldsApplied != 2 || report.FieldsRejected != 2 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	want := []domain.RejectReason{domain.RejectUnknownField, domain.RejectInvalidDate}
	if len(h.observer.rejections) != 2 || h.observer.rejections[0] != want[0] || h.observer.rejections[1] != want[1] {
		t.Fatalf("unexpected rejection telemetry: %v", h.observer.rejections)
	}
}

func TestProcessEnrichesPDFFieldsFromStructuredAnalysis(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	h.extractor.images = []domain.ImageCandidate{grayCandidate(10, 10), grayCandidate(200, 100)}
	analyzer := &analyzerFake{result: extraction.ParseVisualAnalysis(`{
		"identificacao": {"tipo_peca": "blusa", "confianca": 0.8},
		"textura_padrao": {"cor_principal": "azul marinho"}
	}`)}
	h.analyzer = analyzer

	report, err := h.useCase().ProcessByID(context.Background(), "spec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if fieldValue(got, "ref_souq") != "X123" {
		t.Fatalf("text fields must be kept")
	}
	if !strings.Contains(fieldValue(got, "colors"), "azul marinho") {
		t.Fatalf("expected colors enriched from analysis, got %q", fieldValue(got, "colors"))
	}
	if analyzer.seen != 2 || report.ImagesFound != 2 || report.AnalysisMode != domain.AnalysisStructured {
		t.Fatalf("unexpected analysis bookkeeping: seen=%d report=%+v", analyzer.seen, report)
	}
	if got.ProductPhotoRef != "product-photos/spec-1.png" {
		t.Fatalf("unexpected product photo ref %q", got.ProductPhotoRef)
	}
	photo, ok := h.media.files["product-photos/spec-1.png"]
	if !ok || !strings.Contains(string(photo), "(200,100)") {
		t.Fatalf("expected the largest image as product photo, got %q", photo)
	}
	if got.ThumbnailRef != "thumbnails/spec-1.png" || h.renderer.calls != 1 {
		t.Fatalf("expected a rendered first-page thumbnail, got %q", got.ThumbnailRef)
	}
}

func TestProcessDrawingFailureKeepsCompletedAndPreviousDrawing(t *testing.T) {
	spec := pdfSpec()
	previous := domain.LocalPath("spec-1_old.png")
	spec.Drawing = &previous
	h := newPipelineHarness(spec)
	h.drawings.err = domain.ErrDrawingGeneration

	report, err := h.useCase().ProcessByID(context.Background(), "spec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusCompleted {
		t.Fatalf("drawing failure must not regress status, got %s", got.ProcessingStatus)
	}
	if got.SketchStatus != domain.SketchError || report.SketchStatus != domain.SketchError {
		t.Fatalf("expected sketch error, got %s", got.SketchStatus)
	}
	if got.Drawing == nil || *got.Drawing != previous {
		t.Fatalf("expected previous drawing to be untouched, got %+v", got.Drawing)
	}

	if len(h.repo.saves) != 3 {
		t.Fatalf("expected processing, completed and sketch saves, got %d", len(h.repo.saves))
	}
	if s := h.repo.saves[1]; s.ProcessingStatus != domain.StatusCompleted || s.SketchStatus != domain.SketchProcessing {
		t.Fatalf("expected completed to be persisted before drawing, got %s/%s", s.ProcessingStatus, s.SketchStatus)
	}
}

func TestProcessWithoutImageBackendMarksSketchNotNeeded(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	h.noDrawing = true

	if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusCompleted || got.SketchStatus != domain.SketchNotNeeded {
		t.Fatalf("unexpected statuses %s/%s", got.ProcessingStatus, got.SketchStatus)
	}
	if len(h.repo.saves) != 2 {
		t.Fatalf("expected two saves without a drawing stage, got %d", len(h.repo.saves))
	}
	if len(h.observer.sketches) != 1 || h.observer.sketches[0] != domain.SketchNotNeeded {
		t.Fatalf("unexpected sketch telemetry %v", h.observer.sketches)
	}
}

func TestProcessImageUploadUsesVisualAnalysisOnly(t *testing.T) {
	h := newPipelineHarness(imageSpec())
	vision := &visionModelFake{answer: `{
		"identificacao": {"tipo_peca": "blusa", "categoria": "top", "confianca": 0.9},
		"gola_decote": {"tipo": "redonda", "formato": "careca"},
		"mangas": {"comprimento": "curta"},
		"itens_nao_visiveis": []
	}`}
	h.analyzer = extraction.NewVisualAnalyzer(vision, codecFake{}, 3, time.Second, nil)
	fields := &fieldExtractorFake{}
	h.fields = fields

	report, err := h.useCase().ProcessByID(context.Background(), "spec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if h.extractor.textCalls != 0 || h.extractor.imageCalls != 0 {
		t.Fatalf("image uploads must skip PDF extraction")
	}
	if fields.calls != 0 {
		t.Fatalf("structured analysis must not call the field extractor")
	}
	if got.ProcessingStatus != domain.StatusCompleted || report.AnalysisMode != domain.AnalysisStructured {
		t.Fatalf("unexpected outcome %s / %s (%s)", got.ProcessingStatus, report.AnalysisMode, got.LastError)
	}
	if d := fieldValue(got, "description"); !strings.Contains(d, "blusa") || !strings.Contains(d, "redonda") {
		t.Fatalf("expected description derived from analysis, got %q", d)
	}
	if !containsAll(h.drawings.prompt, "GOLA/DECOTE", "redonda") {
		t.Fatalf("expected a GOLA/DECOTE line in the drawing prompt, got:\n%s", h.drawings.prompt)
	}
	if got.ThumbnailRef != "thumbnails/spec-1.png" || got.ProductPhotoRef != "product-photos/spec-1.png" {
		t.Fatalf("expected thumbnail and product photo from the upload, got %q %q", got.ThumbnailRef, got.ProductPhotoRef)
	}
	if h.renderer.calls != 0 {
		t.Fatalf("image uploads must not be rasterized")
	}
}

func TestProcessImageProseAnalysisFeedsFieldExtractorAndPrompt(t *testing.T) {
	prose := "Camiseta branca de malha com decote redondo, mangas curtas e barra reta."
	h := newPipelineHarness(imageSpec())
	h.analyzer = &analyzerFake{result: domain.ProseAnalysis(prose)}
	fields := &fieldExtractorFake{values: map[string]any{"description": "camiseta branca"}}
	h.fields = fields

	if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.ProcessingStatus)
	}
	if fields.text != prose {
		t.Fatalf("expected the prose to be the extraction input, got %q", fields.text)
	}
	if h.drawings.prompt == "" || !strings.Contains(h.drawings.prompt, prose) {
		t.Fatalf("expected prose embedded verbatim in the prompt, got:\n%s", h.drawings.prompt)
	}
}

func TestProcessImageWithoutAnalysisIsError(t *testing.T) {
	h := newPipelineHarness(imageSpec())

	if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusError || got.SketchStatus != domain.SketchNotNeeded {
		t.Fatalf("unexpected statuses %s/%s", got.ProcessingStatus, got.SketchStatus)
	}

	h = newPipelineHarness(imageSpec())
	h.loader.err = domain.ErrDecode
	if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.repo.get("spec-1"); got.ProcessingStatus != domain.StatusError {
		t.Fatalf("undecodable upload must end in error, got %s", got.ProcessingStatus)
	}
}

func TestProcessRerunDiscardsPreviousDerivedFields(t *testing.T) {
	spec := pdfSpec()
	old := "antiga"
	spec.Collection = &old
	spec.ProcessingStatus = domain.StatusCompleted
	spec.RawExtractedText = "old text"
	h := newPipelineHarness(spec)

	if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.repo.get("spec-1")
	if got.Collection != nil {
		t.Fatalf("expected previous field values to be discarded, got %q", *got.Collection)
	}
	if h.repo.saves[0].ProcessingStatus != domain.StatusProcessing || h.repo.saves[0].RawExtractedText != "" {
		t.Fatalf("expected the first save to reset the record to processing")
	}
}

func TestProcessHoldsPerSpecificationLock(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	uc := h.useCase()

	unlock, err := h.locker.Lock(context.Background(), "spec:spec-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := uc.ProcessByID(context.Background(), "spec-1"); !errors.Is(err, domain.ErrLockNotAcquired) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if len(h.repo.saves) != 0 {
		t.Fatalf("no write may happen without the lock")
	}
	unlock()

	if _, err := uc.ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error after unlock: %v", err)
	}
	if h.locker.unlock != 2 {
		t.Fatalf("expected the run to release its lock, releases=%d", h.locker.unlock)
	}
}

func TestProcessReturnsLoadAndPersistenceFailures(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	if _, err := h.useCase().ProcessByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	h = newPipelineHarness(pdfSpec())
	h.repo.saveErr = errors.New("connection reset")
	h.repo.failSaveAt = 2
	report, err := h.useCase().ProcessByID(context.Background(), "spec-1")
	if err == nil || !strings.Contains(err.Error(), "set status=completed") {
		t.Fatalf("expected terminal save failure, got %v", err)
	}
	if report.SpecID != "spec-1" || h.drawings.calls != 0 {
		t.Fatalf("drawing stage must not run when the terminal status was not stored")
	}
}

func TestProcessCancelledRunEndsInError(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	fields := &fieldExtractorFake{values: map[string]any{"ref_souq": "X123"}}
	h.fields = fields
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.useCase().ProcessByID(ctx, "spec-1"); err != nil {
		t.Fatalf("cancellation must end in a stored status, got %v", err)
	}
	got := h.repo.get("spec-1")
	if got.ProcessingStatus != domain.StatusError || fields.calls != 0 {
		t.Fatalf("expected cancelled run to stop before the model call, got %s calls=%d", got.ProcessingStatus, fields.calls)
	}
	if !strings.Contains(got.LastError, context.Canceled.Error()) {
		t.Fatalf("expected cancellation diagnostic, got %q", got.LastError)
	}
}

func TestProcessRecordsTelemetry(t *testing.T) {
	h := newPipelineHarness(pdfSpec())
	h.extractor.images = []domain.ImageCandidate{grayCandidate(20, 20)}
	h.analyzer = &analyzerFake{result: domain.ProseAnalysis("camiseta")}

	if _, err := h.useCase().ProcessByID(context.Background(), "spec-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o := h.observer
	if o.started != 1 || len(o.finished) != 1 || o.finished[0] != domain.StatusCompleted {
		t.Fatalf("unexpected run telemetry started=%d finished=%v", o.started, o.finished)
	}
	stages := strings.Join(o.stages, ",")
	for _, stage := range []string{stageTextExtraction, stageFieldExtraction, stageImageExtraction, stageVisualAnalysis, stageDrawing} {
		if !strings.Contains(stages, stage) {
			t.Fatalf("missing stage %s in %s", stage, stages)
		}
	}
	if len(o.modes) != 1 || o.modes[0] != domain.AnalysisProse {
		t.Fatalf("unexpected analysis telemetry %v", o.modes)
	}
}
