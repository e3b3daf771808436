package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONCarriesServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "techsheet-worker", "warn", "json")
	logger.Info("pipeline_started", "spec_id", "a")
	logger.Warn("field_skipped", "field", "color_code")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["service"] != "techsheet-worker" || entry["msg"] != "field_skipped" || entry["field"] != "color_code" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "specctl", "debug", "TEXT").Debug("prompt_built", "template", "clean")
	if !strings.Contains(buf.String(), "template=clean") || !strings.Contains(buf.String(), "service=specctl") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}
