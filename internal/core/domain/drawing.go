package domain

import (
	"fmt"
	"path"
	"strings"
)

type DrawingRefKind string

const (
	DrawingExternalURL DrawingRefKind = "external_url"
	DrawingLocalPath   DrawingRefKind = "local_path"
	DrawingStorageKey  DrawingRefKind = "storage_key"
)

// DrawingKeyPrefix is the object-store namespace for generated drawings.
const DrawingKeyPrefix = "technical-drawings/"

// DrawingRef addresses a generated drawing. The kind is fixed when the
// reference is written.
type DrawingRef struct {
	Kind  DrawingRefKind `json:"kind"`
	Value string         `json:"value"`
}

func ExternalURL(url string) DrawingRef { return DrawingRef{Kind: DrawingExternalURL, Value: url} }
func LocalPath(name string) DrawingRef  { return DrawingRef{Kind: DrawingLocalPath, Value: name} }
func StorageKey(key string) DrawingRef  { return DrawingRef{Kind: DrawingStorageKey, Value: key} }

func (r DrawingRef) Valid() error {
	if strings.TrimSpace(r.Value) == "" {
		return fmt.Errorf("drawing reference: empty value")
	}
	switch r.Kind {
	case DrawingExternalURL, DrawingLocalPath, DrawingStorageKey:
		return nil
	default:
		return fmt.Errorf("drawing reference: unknown kind %q", r.Kind)
	}
}

// Basename returns the file name part of the reference value.
func (r DrawingRef) Basename() string {
	return path.Base(r.Value)
}

// ParseLegacyDrawingRef classifies an untagged stored value. It is only used
// for rows written before the kind was persisted.
func ParseLegacyDrawingRef(value string) (DrawingRef, bool) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return DrawingRef{}, false
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		return ExternalURL(value), true
	case strings.HasPrefix(value, DrawingKeyPrefix):
		return StorageKey(value), true
	default:
		return LocalPath(value), true
	}
}
