package vertex

import (
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

func TestResponseTextJoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"ref_souq":`),
				genai.Blob{MIMEType: "image/png", Data: []byte{1}},
				genai.Text(`"A1"} `),
			}},
		}},
	}
	if got := responseText(resp); got != `{"ref_souq":"A1"}` {
		t.Fatalf("responseText() = %q", got)
	}
}

func TestResponseTextEmptyCandidates(t *testing.T) {
	if got := responseText(&genai.GenerateContentResponse{}); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Fatalf("expected empty text for nil response, got %q", got)
	}
}

func TestImageFormat(t *testing.T) {
	cases := map[string]string{
		"image/jpeg": "jpeg",
		"image/PNG":  "png",
		"":           "jpeg",
		"image/jpg":  "jpeg",
	}
	for in, want := range cases {
		if got := imageFormat(in); got != want {
			t.Fatalf("imageFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
