package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/techsheet/internal/bootstrap"
	"github.com/kirillkom/techsheet/internal/config"
	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/infrastructure/export/xlsx"
)

type repoStub struct {
	specs map[string]*domain.Specification
}

func (r *repoStub) Create(context.Context, *domain.Specification) error { return nil }
func (r *repoStub) Save(context.Context, *domain.Specification) error   { return nil }
func (r *repoStub) GetByID(_ context.Context, id string) (*domain.Specification, error) {
	spec, ok := r.specs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return spec, nil
}
func (r *repoStub) ListWithDrawings(context.Context) ([]*domain.Specification, error) {
	return nil, nil
}
func (r *repoStub) ListMissingThumbnails(context.Context) ([]*domain.Specification, error) {
	return nil, nil
}

func stubApp(cfg config.Config, specs ...*domain.Specification) appFactory {
	repo := &repoStub{specs: map[string]*domain.Specification{}}
	for _, s := range specs {
		repo.specs[s.ID] = s
	}
	return func(context.Context, rootOptions) (*bootstrap.App, error) {
		return &bootstrap.App{Config: cfg, Repo: repo}, nil
	}
}

func runCmd(t *testing.T, open appFactory, args ...string) (string, error) {
	t.Helper()
	root := newRootCmdWith(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sampleSpec() *domain.Specification {
	spec := domain.NewSpecification("spec-9", "", "blusa.pdf", "spec-9_blusa.pdf", domain.MediaPDF, time.Unix(1700000000, 0))
	desc, _ := domain.LookupField("description")
	desc.Set(&spec.Fields, "Blusa manga bufante")
	bust, _ := domain.LookupField("bust")
	bust.Set(&spec.Fields, "48 cm")
	return spec
}

func TestPromptCommandPrintsComposedInstruction(t *testing.T) {
	out, err := runCmd(t, stubApp(config.Config{}, sampleSpec()), "prompt", "spec-9")
	if err != nil {
		t.Fatalf("prompt returned error: %v", err)
	}
	if !strings.HasPrefix(out, "# template: dimensioned") {
		t.Fatalf("expected dimensioned template header, got %q", out)
	}
	if !strings.Contains(out, "48 cm") {
		t.Fatalf("expected the bust measurement in the prompt, got %q", out)
	}
}

func TestPromptCommandUnknownSpecification(t *testing.T) {
	if _, err := runCmd(t, stubApp(config.Config{}), "prompt", "missing"); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestExportCommandWritesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	out, err := runCmd(t, stubApp(config.Config{}, sampleSpec()), "export", "spec-9", "-o", path)
	if err != nil {
		t.Fatalf("export returned error: %v", err)
	}
	if strings.TrimSpace(out) != path {
		t.Fatalf("expected output path to be printed, got %q", out)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(xlsx.SheetName)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	found := false
	for _, row := range rows {
		if len(row) == 4 && row[2] == "description" && row[3] == "Blusa manga bufante" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected description row in %v", rows)
	}
}

func TestMigrateCommandRequiresObjectStore(t *testing.T) {
	_, err := runCmd(t, stubApp(config.Config{DrawingStore: "local"}), "migrate-drawings")
	if err == nil || !strings.Contains(err.Error(), "DRAWING_STORE") {
		t.Fatalf("expected local store refusal, got %v", err)
	}
}

func TestCommandsValidateArguments(t *testing.T) {
	for _, args := range [][]string{{"process"}, {"export"}, {"prompt", "a", "b"}, {"thumbnails", "extra"}} {
		if _, err := runCmd(t, stubApp(config.Config{}), args...); err == nil {
			t.Fatalf("expected argument error for %v", args)
		}
	}
}
