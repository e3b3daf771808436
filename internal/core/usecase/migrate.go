package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/ports"
)

type MigrationReport struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// MigrateDrawingsUseCase moves drawings that still live in the local drawing
// directory into the object store and rewrites their references.
type MigrateDrawingsUseCase struct {
	repo   ports.SpecificationRepository
	local  ports.DrawingStore
	remote ports.DrawingStore
	locker ports.RunLocker
	logger *slog.Logger
	now    func() time.Time
}

func NewMigrateDrawingsUseCase(
	repo ports.SpecificationRepository,
	local ports.DrawingStore,
	remote ports.DrawingStore,
	locker ports.RunLocker,
	logger *slog.Logger,
) *MigrateDrawingsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrateDrawingsUseCase{repo: repo, local: local, remote: remote, locker: locker, logger: logger, now: time.Now}
}

type migrationOutcome int

const (
	outcomeMigrated migrationOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (uc *MigrateDrawingsUseCase) Run(ctx context.Context) (MigrationReport, error) {
	specs, err := uc.repo.ListWithDrawings(ctx)
	if err != nil {
		return MigrationReport{}, fmt.Errorf("list specifications with drawings: %w", err)
	}

	report := MigrationReport{Total: len(specs)}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch uc.migrateOne(ctx, spec) {
		case outcomeMigrated:
			report.Migrated++
		case outcomeSkipped:
			report.Skipped++
		default:
			report.Errors++
		}
	}
	uc.logger.Info("drawing_migration_finished",
		"total", report.Total, "migrated", report.Migrated, "skipped", report.Skipped, "errors", report.Errors)
	return report, nil
}

func (uc *MigrateDrawingsUseCase) migrateOne(ctx context.Context, spec *domain.Specification) migrationOutcome {
	logger := uc.logger.With("spec_id", spec.ID)
	if spec.Drawing == nil {
		return outcomeSkipped
	}
	ref := *spec.Drawing

	switch ref.Kind {
	case domain.DrawingExternalURL:
		logger.Info("drawing_migration_skipped", "reason", "external_url")
		return outcomeSkipped
	case domain.DrawingStorageKey:
		exists, err := uc.remote.Exists(ctx, ref.Value)
		if err != nil {
			logger.Warn("drawing_exists_check_failed", "key", ref.Value, "error", err)
		} else if exists {
			logger.Info("drawing_migration_skipped", "reason", "already_migrated", "key", ref.Value)
			return outcomeSkipped
		}
	}

	data, err := uc.readLocal(ctx, ref.Value)
	if err != nil {
		logger.Error("drawing_migration_failed", "stage", "read_local", "ref", ref.Value, "error", err)
		return outcomeFailed
	}

	key := domain.DrawingKeyPrefix + path.Base(ref.Value)
	stored, err := uc.remote.Put(ctx, key, data, "image/png")
	if err != nil {
		logger.Error("drawing_migration_failed", "stage", "upload", "key", key, "error", err)
		return outcomeFailed
	}

	if err := uc.persist(ctx, spec.ID, ref, stored); err != nil {
		if errors.Is(err, errDrawingReplaced) {
			logger.Info("drawing_migration_skipped", "reason", "replaced_during_migration", "uploaded_key", stored.Value)
			return outcomeSkipped
		}
		logger.Error("drawing_migration_failed", "stage", "persist", "key", key, "error", err)
		return outcomeFailed
	}
	logger.Info("drawing_migrated", "from", ref.Value, "to", stored.Value)
	return outcomeMigrated
}

func (uc *MigrateDrawingsUseCase) readLocal(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.local.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty drawing file")
	}
	return data, nil
}

var errDrawingReplaced = errors.New("drawing replaced since listing")

// persist reloads the record under the run lock and rewrites the reference
// only while it still points at the migrated drawing.
func (uc *MigrateDrawingsUseCase) persist(ctx context.Context, specID string, from, to domain.DrawingRef) error {
	if uc.locker != nil {
		unlock, err := uc.locker.Lock(ctx, "spec:"+specID)
		if err != nil {
			return err
		}
		defer unlock()
	}
	spec, err := uc.repo.GetByID(ctx, specID)
	if err != nil {
		return err
	}
	if spec.Drawing == nil || *spec.Drawing != from {
		return errDrawingReplaced
	}
	spec.Drawing = &to
	spec.UpdatedAt = uc.now()
	return uc.repo.Save(ctx, spec)
}
