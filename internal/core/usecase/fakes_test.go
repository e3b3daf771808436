package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

type specRepoFake struct {
	mu        sync.Mutex
	records   map[string]domain.Specification
	saves     []domain.Specification
	created   []domain.Specification
	saveErr   error
	createErr error
	// failSaveAt fails the n-th Save call (1-based) when set.
	failSaveAt int
}

func newSpecRepoFake(specs ...*domain.Specification) *specRepoFake {
	f := &specRepoFake{records: map[string]domain.Specification{}}
	for _, s := range specs {
		f.records[s.ID] = *s
	}
	return f
}

func (f *specRepoFake) Create(_ context.Context, spec *domain.Specification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.records[spec.ID] = *spec
	f.created = append(f.created, *spec)
	return nil
}

func (f *specRepoFake) GetByID(_ context.Context, id string) (*domain.Specification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (f *specRepoFake) Save(_ context.Context, spec *domain.Specification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil && (f.failSaveAt == 0 || f.failSaveAt == len(f.saves)+1) {
		f.saves = append(f.saves, *spec)
		return f.saveErr
	}
	if _, ok := f.records[spec.ID]; !ok {
		return domain.ErrNotFound
	}
	f.records[spec.ID] = *spec
	f.saves = append(f.saves, *spec)
	return nil
}

func (f *specRepoFake) ListWithDrawings(context.Context) ([]*domain.Specification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Specification
	for _, s := range f.records {
		if s.Drawing != nil {
			c := s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *specRepoFake) ListMissingThumbnails(context.Context) ([]*domain.Specification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Specification
	for _, s := range f.records {
		if s.MediaKind == domain.MediaPDF && s.ThumbnailRef == "" {
			c := s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *specRepoFake) get(id string) domain.Specification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

type fileStoreFake struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newFileStoreFake() *fileStoreFake {
	return &fileStoreFake{files: map[string][]byte{}}
}

func (f *fileStoreFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = raw
	return nil
}

func (f *fileStoreFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *fileStoreFake) Path(key string) string { return "/uploads/" + key }

func (f *fileStoreFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, key)
	return nil
}

func (f *fileStoreFake) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[key]
	return ok
}

type drawingStoreFake struct {
	objects map[string][]byte
	wrap    func(string) domain.DrawingRef
	putErr  error
	existsE error
}

func newDrawingStoreFake(wrap func(string) domain.DrawingRef) *drawingStoreFake {
	return &drawingStoreFake{objects: map[string][]byte{}, wrap: wrap}
}

func (f *drawingStoreFake) Put(_ context.Context, key string, data []byte, _ string) (domain.DrawingRef, error) {
	if f.putErr != nil {
		return domain.DrawingRef{}, f.putErr
	}
	f.objects[key] = data
	return f.wrap(key), nil
}

func (f *drawingStoreFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *drawingStoreFake) Exists(_ context.Context, key string) (bool, error) {
	if f.existsE != nil {
		return false, f.existsE
	}
	_, ok := f.objects[key]
	return ok, nil
}

type contentExtractorFake struct {
	text       string
	textErr    error
	images     []domain.ImageCandidate
	imagesErr  error
	textCalls  int
	imageCalls int
}

func (f *contentExtractorFake) ExtractText(context.Context, string) (string, error) {
	f.textCalls++
	return f.text, f.textErr
}

func (f *contentExtractorFake) ExtractImages(context.Context, string) ([]domain.ImageCandidate, error) {
	f.imageCalls++
	return f.images, f.imagesErr
}

type imageLoaderFake struct {
	candidate domain.ImageCandidate
	err       error
	calls     int
}

func (f *imageLoaderFake) Load(context.Context, string) (domain.ImageCandidate, error) {
	f.calls++
	return f.candidate, f.err
}

type codecFake struct{}

func (codecFake) EncodeForModel(image.Image) (domain.EncodedImage, error) {
	return domain.EncodedImage{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}, nil
}

func (codecFake) EncodePNG(img image.Image) ([]byte, error) {
	return []byte("png:" + img.Bounds().String()), nil
}

func (codecFake) Thumbnail(img image.Image) image.Image { return img }

type rendererFake struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *rendererFake) RenderFirstPage(context.Context, string) (image.Image, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return image.NewGray(image.Rect(0, 0, 30, 40)), nil
}

type analyzerFake struct {
	result domain.VisualAnalysis
	calls  int
	seen   int
}

func (f *analyzerFake) Analyze(_ context.Context, images []domain.ImageCandidate) domain.VisualAnalysis {
	f.calls++
	f.seen = len(images)
	return f.result
}

type fieldExtractorFake struct {
	values map[string]any
	err    error
	calls  int
	text   string
}

func (f *fieldExtractorFake) Extract(_ context.Context, text string) (map[string]any, error) {
	f.calls++
	f.text = text
	return f.values, f.err
}

type drawingGeneratorFake struct {
	ref    domain.DrawingRef
	err    error
	calls  int
	prompt string
}

func (f *drawingGeneratorFake) Generate(_ context.Context, _ string, prompt string) (domain.DrawingRef, error) {
	f.calls++
	f.prompt = prompt
	return f.ref, f.err
}

type lockerFake struct {
	mu     sync.Mutex
	keys   []string
	held   map[string]bool
	err    error
	unlock int
}

func (f *lockerFake) Lock(_ context.Context, key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return nil, domain.ErrLockNotAcquired
	}
	f.held[key] = true
	f.keys = append(f.keys, key)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
		f.unlock++
	}, nil
}

type observerFake struct {
	started    int
	finished   []domain.ProcessingStatus
	stages     []string
	rejections []domain.RejectReason
	modes      []domain.AnalysisMode
	sketches   []domain.SketchStatus
}

func (f *observerFake) StartRun() { f.started++ }
func (f *observerFake) FinishRun(status domain.ProcessingStatus, _ float64) {
	f.finished = append(f.finished, status)
}
func (f *observerFake) ObserveStage(stage string, _ float64) { f.stages = append(f.stages, stage) }
func (f *observerFake) FieldRejected(reason domain.RejectReason) {
	f.rejections = append(f.rejections, reason)
}
func (f *observerFake) VisualAnalysis(mode domain.AnalysisMode) { f.modes = append(f.modes, mode) }
func (f *observerFake) SketchFinished(status domain.SketchStatus) {
	f.sketches = append(f.sketches, status)
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishSpecification(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeSpecifications(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type processorFake struct {
	ids []string
	err error
}

func (f *processorFake) ProcessByID(_ context.Context, id string) (domain.RunReport, error) {
	f.ids = append(f.ids, id)
	return domain.RunReport{SpecID: id, Status: domain.StatusCompleted}, f.err
}

type imageModelFake struct {
	data  []byte
	err   error
	calls int
}

func (f *imageModelFake) GenerateImage(context.Context, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func grayCandidate(w, h int) domain.ImageCandidate {
	return domain.NewImageCandidate(image.NewGray(image.Rect(0, 0, w, h)), 1, "")
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
