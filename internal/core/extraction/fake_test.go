package extraction

import (
	"context"
	"image"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

type visionModelFake struct {
	answer  string
	err     error
	calls   int
	prompt  string
	images  int
	sawDead bool
}

func (f *visionModelFake) AnalyzeImages(ctx context.Context, _ string, userPrompt string, images []domain.EncodedImage) (string, error) {
	f.calls++
	f.prompt = userPrompt
	f.images = len(images)
	if _, ok := ctx.Deadline(); ok {
		f.sawDead = true
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type textModelFake struct {
	answer string
	err    error
	calls  int
	prompt string
}

func (f *textModelFake) CompleteJSON(_ context.Context, _ string, userPrompt string) (string, error) {
	f.calls++
	f.prompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type codecFake struct{}

func (codecFake) EncodeForModel(image.Image) (domain.EncodedImage, error) {
	return domain.EncodedImage{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}, nil
}

func (codecFake) EncodePNG(image.Image) ([]byte, error) { return []byte("png"), nil }

func (codecFake) Thumbnail(img image.Image) image.Image { return img }

func candidates(n int) []domain.ImageCandidate {
	out := make([]domain.ImageCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.NewImageCandidate(image.NewGray(image.Rect(0, 0, 10, 10)), 1, ""))
	}
	return out
}
