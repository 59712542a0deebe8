package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewConsoleLevels(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{"info", false, false},
		{"debug", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Options{Debug: tt.debug, Console: &buf}).Named("cache")

			l.Debug("loaded feature index")
			l.Info("evicted feature index", zap.String("region", "tn_09162"))

			out := buf.String()
			if !strings.Contains(out, "tilefilter.cache") {
				t.Errorf("output lacks component name: %q", out)
			}
			if !strings.Contains(out, "tn_09162") {
				t.Errorf("output lacks field: %q", out)
			}
			if got := strings.Contains(out, "loaded feature index"); got != tt.wantDebug {
				t.Errorf("debug entry written = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilefilter.log")
	l := New(Options{File: path, Console: io.Discard})

	l.Named("batch").Info("batch complete", zap.Int("tiles", 3))
	l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, data)
	}
	if entry["logger"] != "tilefilter.batch" || entry["msg"] != "batch complete" || entry["tiles"] != float64(3) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestSetupOnlyOnce(t *testing.T) {
	Setup(Options{Console: io.Discard})
	first := Get()
	Setup(Options{Debug: true, Console: io.Discard})

	if Get() != first {
		t.Error("second Setup replaced the global logger")
	}
	if Named("regions") == nil {
		t.Error("Named() returned nil")
	}
	Sync()
}
