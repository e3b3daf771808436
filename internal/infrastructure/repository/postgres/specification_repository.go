package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
)

const schemaLockID int64 = 2026101801

// Every classification field is a nullable TEXT column named after its wire
// key; dates are stored in their ISO text form.
var (
	baseColumns = []string{
		"id", "owner_id", "source_filename", "source_key", "media_kind",
		"raw_extracted_text", "processing_status", "sketch_status",
		"drawing_kind", "drawing_value", "thumbnail_ref", "product_photo_ref", "last_error",
		"created_at", "updated_at",
	}
	fieldColumns = fieldKeys()
	allColumns   = append(append([]string{}, baseColumns...), fieldColumns...)
	selectList   = strings.Join(allColumns, ", ")
)

func fieldKeys() []string {
	table := domain.FieldTable()
	keys := make([]string, 0, len(table))
	for _, def := range table {
		keys = append(keys, def.Key)
	}
	return keys
}

type SpecificationRepository struct {
	db *sql.DB
}

func NewSpecificationRepository(db *sql.DB) *SpecificationRepository {
	return &SpecificationRepository{db: db}
}

func (r *SpecificationRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL()); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func schemaDDL() string {
	var b strings.Builder
	b.WriteString(`
CREATE TABLE IF NOT EXISTS specifications (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '',
	source_filename TEXT NOT NULL,
	source_key TEXT NOT NULL,
	media_kind TEXT NOT NULL,
	raw_extracted_text TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL,
	sketch_status TEXT NOT NULL,
	drawing_kind TEXT,
	drawing_value TEXT,
	thumbnail_ref TEXT,
	product_photo_ref TEXT,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`)
	for _, col := range fieldColumns {
		fmt.Fprintf(&b, "ALTER TABLE specifications ADD COLUMN IF NOT EXISTS %s TEXT;\n", col)
	}
	b.WriteString(`
CREATE INDEX IF NOT EXISTS idx_specifications_status ON specifications(processing_status);
CREATE INDEX IF NOT EXISTS idx_specifications_created_at ON specifications(created_at DESC);
`)
	return b.String()
}

func (r *SpecificationRepository) Create(ctx context.Context, spec *domain.Specification) error {
	placeholders := make([]string, len(allColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO specifications (%s) VALUES (%s)", selectList, strings.Join(placeholders, ","))
	if _, err := r.db.ExecContext(ctx, query, rowValues(spec)...); err != nil {
		return fmt.Errorf("insert specification: %w", err)
	}
	return nil
}

// Save rewrites every column of the record.
func (r *SpecificationRepository) Save(ctx context.Context, spec *domain.Specification) error {
	spec.UpdatedAt = time.Now().UTC()
	values := rowValues(spec)

	sets := make([]string, 0, len(allColumns)-1)
	args := []any{spec.ID}
	for i, col := range allColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		args = append(args, values[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	query := fmt.Sprintf("UPDATE specifications SET %s WHERE id = $1", strings.Join(sets, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save specification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save specification rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "save specification", fmt.Errorf("id=%s", spec.ID))
	}
	return nil
}

func (r *SpecificationRepository) GetByID(ctx context.Context, id string) (*domain.Specification, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectList+" FROM specifications WHERE id = $1", id)
	spec, err := scanSpecification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get specification", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan specification: %w", err)
	}
	return spec, nil
}

func (r *SpecificationRepository) ListWithDrawings(ctx context.Context) ([]*domain.Specification, error) {
	return r.list(ctx, "drawing_value IS NOT NULL AND drawing_value <> ''")
}

func (r *SpecificationRepository) ListMissingThumbnails(ctx context.Context) ([]*domain.Specification, error) {
	return r.list(ctx, "media_kind = 'pdf' AND (thumbnail_ref IS NULL OR thumbnail_ref = '')")
}

func (r *SpecificationRepository) list(ctx context.Context, where string) ([]*domain.Specification, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+selectList+" FROM specifications WHERE "+where+" ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list specifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Specification
	for rows.Next() {
		spec, err := scanSpecification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan specification: %w", err)
		}
		out = append(out, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate specifications: %w", err)
	}
	return out, nil
}

// rowValues returns the column values of spec in allColumns order.
func rowValues(spec *domain.Specification) []any {
	var drawingKind, drawingValue any
	if spec.Drawing != nil {
		drawingKind = string(spec.Drawing.Kind)
		drawingValue = spec.Drawing.Value
	}
	values := []any{
		spec.ID, spec.OwnerID, spec.SourceFilename, spec.SourceKey, string(spec.MediaKind),
		spec.RawExtractedText, string(spec.ProcessingStatus), string(spec.SketchStatus),
		drawingKind, drawingValue, nullable(spec.ThumbnailRef), nullable(spec.ProductPhotoRef), nullable(spec.LastError),
		spec.CreatedAt, spec.UpdatedAt,
	}
	for _, def := range domain.FieldTable() {
		values = append(values, nullable(def.Get(&spec.Fields)))
	}
	return values
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpecification(row rowScanner) (*domain.Specification, error) {
	var (
		spec                               domain.Specification
		mediaKind, status, sketchStatus    string
		drawingKind, drawingValue          sql.NullString
		thumbnail, productPhoto, lastError sql.NullString
	)
	fieldValues := make([]sql.NullString, len(fieldColumns))

	dest := []any{
		&spec.ID, &spec.OwnerID, &spec.SourceFilename, &spec.SourceKey, &mediaKind,
		&spec.RawExtractedText, &status, &sketchStatus,
		&drawingKind, &drawingValue, &thumbnail, &productPhoto, &lastError,
		&spec.CreatedAt, &spec.UpdatedAt,
	}
	for i := range fieldValues {
		dest = append(dest, &fieldValues[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	spec.MediaKind = domain.MediaKind(mediaKind)
	spec.ProcessingStatus = domain.ProcessingStatus(status)
	spec.SketchStatus = domain.SketchStatus(sketchStatus)
	spec.ThumbnailRef = thumbnail.String
	spec.ProductPhotoRef = productPhoto.String
	spec.LastError = lastError.String
	spec.Drawing = drawingRef(drawingKind.String, drawingValue.String)

	for i, def := range domain.FieldTable() {
		if fieldValues[i].Valid {
			def.Set(&spec.Fields, fieldValues[i].String)
		}
	}
	return &spec, nil
}

// drawingRef rebuilds the stored reference. Rows written before the kind
// column existed are classified from the value.
func drawingRef(kind, value string) *domain.DrawingRef {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if kind == "" {
		ref, ok := domain.ParseLegacyDrawingRef(value)
		if !ok {
			return nil
		}
		return &ref
	}
	ref := domain.DrawingRef{Kind: domain.DrawingRefKind(kind), Value: value}
	return &ref
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
