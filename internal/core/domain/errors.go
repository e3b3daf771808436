package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("specification not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTemporary        = errors.New("temporary failure")
)

// Pipeline failure taxonomy. Stage boundaries translate these into fallback
// values or status transitions; none of them escape the orchestrator.
var (
	ErrDecode                = errors.New("image decode failed")
	ErrUnsupportedColorSpace = errors.New("unsupported color space")
	ErrInsufficientText      = errors.New("insufficient extracted text")
	ErrModelUnavailable      = errors.New("model backend unavailable")
	ErrMalformedModelOutput  = errors.New("malformed model output")
	ErrInvalidDate           = errors.New("invalid date value")
	ErrDrawingGeneration     = errors.New("drawing generation failed")
	ErrLockNotAcquired       = errors.New("specification is locked by another run")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
