package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		code      int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		err := fmt.Errorf("call: %w", &HTTPStatusError{Backend: "openai", Operation: "chat", StatusCode: tc.code})
		if got := ClassifyHTTP(err).Retryable; got != tc.retryable {
			t.Fatalf("status %d retryable = %v, want %v", tc.code, got, tc.retryable)
		}
	}
}

func TestWrapModelErrorKinds(t *testing.T) {
	temp := WrapModelError("chat", &HTTPStatusError{StatusCode: http.StatusBadGateway})
	if !domain.IsKind(temp, domain.ErrTemporary) || !domain.IsKind(temp, domain.ErrModelUnavailable) {
		t.Fatalf("502 should be temporary and unavailable: %v", temp)
	}

	perm := WrapModelError("chat", &HTTPStatusError{StatusCode: http.StatusBadRequest})
	if domain.IsKind(perm, domain.ErrTemporary) || !domain.IsKind(perm, domain.ErrModelUnavailable) {
		t.Fatalf("400 should be unavailable only: %v", perm)
	}

	cancelled := WrapModelError("chat", context.Canceled)
	if !errors.Is(cancelled, context.Canceled) || domain.IsKind(cancelled, domain.ErrModelUnavailable) {
		t.Fatalf("cancellation must pass through untouched: %v", cancelled)
	}
}
