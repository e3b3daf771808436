// Package firestore stores one document per specification.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

type specDoc struct {
	OwnerID          string            `firestore:"owner_id"`
	SourceFilename   string            `firestore:"source_filename"`
	SourceKey        string            `firestore:"source_key"`
	MediaKind        string            `firestore:"media_kind"`
	RawExtractedText string            `firestore:"raw_extracted_text"`
	ProcessingStatus string            `firestore:"processing_status"`
	SketchStatus     string            `firestore:"sketch_status"`
	DrawingKind      string            `firestore:"drawing_kind"`
	DrawingValue     string            `firestore:"drawing_value"`
	ThumbnailRef     string            `firestore:"thumbnail_ref"`
	ProductPhotoRef  string            `firestore:"product_photo_ref"`
	LastError        string            `firestore:"last_error"`
	Fields           map[string]string `firestore:"fields"`
	CreatedAt        time.Time         `firestore:"created_at"`
	UpdatedAt        time.Time         `firestore:"updated_at"`
}

type SpecificationRepository struct {
	client     *firestore.Client
	collection string
}

func New(ctx context.Context, projectID, collection string) (*SpecificationRepository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore: project id is required")
	}
	if collection == "" {
		collection = "specifications"
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &SpecificationRepository{client: client, collection: collection}, nil
}

func (r *SpecificationRepository) Close() error {
	return r.client.Close()
}

func (r *SpecificationRepository) Create(ctx context.Context, spec *domain.Specification) error {
	if _, err := r.client.Collection(r.collection).Doc(spec.ID).Create(ctx, toDoc(spec)); err != nil {
		return fmt.Errorf("create specification document: %w", err)
	}
	return nil
}

func (r *SpecificationRepository) GetByID(ctx context.Context, id string) (*domain.Specification, error) {
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.WrapError(domain.ErrNotFound, "get specification", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get specification document: %w", err)
	}
	return decode(snap)
}

// Save replaces the whole document, failing when it does not exist.
func (r *SpecificationRepository) Save(ctx context.Context, spec *domain.Specification) error {
	spec.UpdatedAt = time.Now().UTC()
	ref := r.client.Collection(r.collection).Doc(spec.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, toDoc(spec))
	})
	if status.Code(err) == codes.NotFound {
		return domain.WrapError(domain.ErrNotFound, "save specification", fmt.Errorf("id=%s", spec.ID))
	}
	if err != nil {
		return fmt.Errorf("save specification document: %w", err)
	}
	return nil
}

func (r *SpecificationRepository) ListWithDrawings(ctx context.Context) ([]*domain.Specification, error) {
	return r.list(ctx, r.client.Collection(r.collection).Where("drawing_value", "!=", ""))
}

func (r *SpecificationRepository) ListMissingThumbnails(ctx context.Context) ([]*domain.Specification, error) {
	q := r.client.Collection(r.collection).
		Where("media_kind", "==", string(domain.MediaPDF)).
		Where("thumbnail_ref", "==", "")
	return r.list(ctx, q)
}

func (r *SpecificationRepository) list(ctx context.Context, q firestore.Query) ([]*domain.Specification, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query specifications: %w", err)
	}
	out := make([]*domain.Specification, 0, len(snaps))
	for _, snap := range snaps {
		spec, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func decode(snap *firestore.DocumentSnapshot) (*domain.Specification, error) {
	var doc specDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode specification %s: %w", snap.Ref.ID, err)
	}
	return fromDoc(snap.Ref.ID, doc), nil
}

func toDoc(spec *domain.Specification) specDoc {
	doc := specDoc{
		OwnerID:          spec.OwnerID,
		SourceFilename:   spec.SourceFilename,
		SourceKey:        spec.SourceKey,
		MediaKind:        string(spec.MediaKind),
		RawExtractedText: spec.RawExtractedText,
		ProcessingStatus: string(spec.ProcessingStatus),
		SketchStatus:     string(spec.SketchStatus),
		ThumbnailRef:     spec.ThumbnailRef,
		ProductPhotoRef:  spec.ProductPhotoRef,
		LastError:        spec.LastError,
		Fields:           map[string]string{},
		CreatedAt:        spec.CreatedAt,
		UpdatedAt:        spec.UpdatedAt,
	}
	if spec.Drawing != nil {
		doc.DrawingKind = string(spec.Drawing.Kind)
		doc.DrawingValue = spec.Drawing.Value
	}
	for _, def := range domain.FieldTable() {
		if v := def.Get(&spec.Fields); v != "" {
			doc.Fields[def.Key] = v
		}
	}
	return doc
}

func fromDoc(id string, doc specDoc) *domain.Specification {
	spec := &domain.Specification{
		ID:               id,
		OwnerID:          doc.OwnerID,
		SourceFilename:   doc.SourceFilename,
		SourceKey:        doc.SourceKey,
		MediaKind:        domain.MediaKind(doc.MediaKind),
		RawExtractedText: doc.RawExtractedText,
		ProcessingStatus: domain.ProcessingStatus(doc.ProcessingStatus),
		SketchStatus:     domain.SketchStatus(doc.SketchStatus),
		ThumbnailRef:     doc.ThumbnailRef,
		ProductPhotoRef:  doc.ProductPhotoRef,
		LastError:        doc.LastError,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	switch {
	case doc.DrawingValue == "":
	case doc.DrawingKind == "":
		if ref, ok := domain.ParseLegacyDrawingRef(doc.DrawingValue); ok {
			spec.Drawing = &ref
		}
	default:
		spec.Drawing = &domain.DrawingRef{Kind: domain.DrawingRefKind(doc.DrawingKind), Value: doc.DrawingValue}
	}
	for key, value := range doc.Fields {
		if def, ok := domain.LookupField(key); ok {
			def.Set(&spec.Fields, value)
		}
	}
	return spec
}
