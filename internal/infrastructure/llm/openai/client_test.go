package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/infrastructure/resilience"
)

func newTestClient(baseURL string) *Client {
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(Config{
		BaseURL:     baseURL,
		APIKey:      "sk-test",
		TextModel:   "text-model",
		VisionModel: "vision-model",
		ImageModel:  "image-model",
	}, exec)
}

func TestCompleteJSONRequestsJSONObject(t *testing.T) {
	var payload map[string]any
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"ref_souq\":\"X1\"} "}}]}`))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).CompleteJSON(context.Background(), "sys", "user text")
	if err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if got != `{"ref_souq":"X1"}` {
		t.Fatalf("unexpected content %q", got)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if payload["model"] != "text-model" {
		t.Fatalf("unexpected model %v", payload["model"])
	}
	format, _ := payload["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", payload["response_format"])
	}
}

func TestAnalyzeImagesSendsDataURIs(t *testing.T) {
	var payload struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"analysis"}}]}`))
	}))
	defer server.Close()

	images := []domain.EncodedImage{
		{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}},
		{MIMEType: "image/png", Data: []byte{0x89, 'P'}},
	}
	got, err := newTestClient(server.URL).AnalyzeImages(context.Background(), "sys", "look", images)
	if err != nil {
		t.Fatalf("AnalyzeImages() error = %v", err)
	}
	if got != "analysis" {
		t.Fatalf("unexpected answer %q", got)
	}
	if payload.Model != "vision-model" || len(payload.Messages) != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	var parts []contentPart
	if err := json.Unmarshal(payload.Messages[1].Content, &parts); err != nil {
		t.Fatalf("user content is not a part list: %v", err)
	}
	if len(parts) != 3 || parts[0].Text != "look" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P'})
	if parts[2].ImageURL == nil || parts[2].ImageURL.URL != want {
		t.Fatalf("unexpected image part %+v", parts[2])
	}
}

func TestGenerateImageDecodesInlineData(t *testing.T) {
	png := []byte("\x89PNG-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).GenerateImage(context.Background(), "draw")
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if string(got) != string(png) {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestGenerateImageFollowsURL(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"url":"` + server.URL + `/files/sketch.png"}]}`))
	})
	mux.HandleFunc("/files/sketch.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote-png"))
	})

	got, err := newTestClient(server.URL).GenerateImage(context.Background(), "draw")
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if string(got) != "remote-png" {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestChatErrorCarriesBodyAndKind(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CompleteJSON(context.Background(), "sys", "user")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("401 must not be retried, got %d calls", calls)
	}
}

func TestChatRetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).CompleteJSON(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}
