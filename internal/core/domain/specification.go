package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusError      ProcessingStatus = "error"
)

// Terminal reports whether a run has finished in this status.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type SketchStatus string

const (
	SketchPending    SketchStatus = "pending"
	SketchProcessing SketchStatus = "processing"
	SketchCompleted  SketchStatus = "completed"
	SketchError      SketchStatus = "error"
	SketchNotNeeded  SketchStatus = "not_needed"
)

type MediaKind string

const (
	MediaPDF   MediaKind = "pdf"
	MediaImage MediaKind = "image"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// MediaKindFromFilename decides the input branch from the file extension.
func MediaKindFromFilename(filename string) (MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".pdf" {
		return MediaPDF, true
	}
	if _, ok := imageExtensions[ext]; ok {
		return MediaImage, true
	}
	return "", false
}

// Specification is the record one uploaded technical sheet produces.
type Specification struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id,omitempty"`
	SourceFilename string    `json:"source_filename"`
	SourceKey      string    `json:"source_key"`
	MediaKind      MediaKind `json:"media_kind"`

	Fields

	RawExtractedText string           `json:"raw_extracted_text"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	SketchStatus     SketchStatus     `json:"sketch_generation_status"`
	Drawing          *DrawingRef      `json:"technical_drawing_reference,omitempty"`
	ThumbnailRef     string           `json:"thumbnail_reference,omitempty"`
	ProductPhotoRef  string           `json:"product_photo_reference,omitempty"`
	LastError        string           `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSpecification builds a freshly uploaded record.
func NewSpecification(id, ownerID, filename, sourceKey string, kind MediaKind, now time.Time) *Specification {
	return &Specification{
		ID:               id,
		OwnerID:          ownerID,
		SourceFilename:   filename,
		SourceKey:        sourceKey,
		MediaKind:        kind,
		ProcessingStatus: StatusPending,
		SketchStatus:     SketchPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// BeginRun starts a new pipeline run. Derived outputs of the previous run are
// discarded wholesale; the drawing reference survives until a new drawing
// replaces it.
func (s *Specification) BeginRun() {
	s.ProcessingStatus = StatusProcessing
	s.SketchStatus = SketchPending
	s.RawExtractedText = ""
	s.Fields = Fields{}
	s.LastError = ""
}

// Finish moves a processing record to a terminal status. It is a no-op for
// records that are not currently processing.
func (s *Specification) Finish(status ProcessingStatus, message string) bool {
	if s.ProcessingStatus != StatusProcessing || !status.Terminal() {
		return false
	}
	s.ProcessingStatus = status
	s.LastError = message
	return true
}
