package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wegman-software/tilefilter/internal/dataset"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantName     string
		wantURL      string
		wantFileName string
		wantErr      bool
	}{
		{
			name:         "alkis",
			input:        "alkis-bayern",
			wantName:     "alkis-bayern",
			wantURL:      "https://geodaten.bayern.de/odd/m/3/daten/tn/Nutzung_kreis.gpkg",
			wantFileName: "Nutzung_kreis.gpkg",
		},
		{
			name:         "geofabrik bayern",
			input:        "geofabrik/bayern",
			wantName:     "geofabrik/bayern",
			wantURL:      "https://download.geofabrik.de/europe/germany/bayern-latest.osm.pbf",
			wantFileName: "bayern.osm.pbf",
		},
		{
			name:         "geofabrik raw path",
			input:        "geofabrik/europe/andorra",
			wantName:     "geofabrik/europe/andorra",
			wantURL:      "https://download.geofabrik.de/europe/andorra-latest.osm.pbf",
			wantFileName: "andorra.osm.pbf",
		},
		{
			name:         "shortcut",
			input:        "Oberbayern",
			wantName:     "geofabrik/oberbayern",
			wantURL:      "https://download.geofabrik.de/europe/germany/bayern/oberbayern-latest.osm.pbf",
			wantFileName: "oberbayern.osm.pbf",
		},
		{
			name:         "custom URL",
			input:        "https://example.com/data/tn_09162.geojson?v=2",
			wantName:     "custom",
			wantURL:      "https://example.com/data/tn_09162.geojson?v=2",
			wantFileName: "tn_09162.geojson",
		},
		{name: "URL without file", input: "https://example.com/", wantErr: true},
		{name: "empty geofabrik", input: "geofabrik/", wantErr: true},
		{name: "unknown", input: "atlantis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := ParseSource(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.Name != tt.wantName || src.URL != tt.wantURL || src.FileName != tt.wantFileName {
				t.Errorf("ParseSource(%q) = %+v", tt.input, src)
			}
		})
	}
}

func TestListSources(t *testing.T) {
	sources := ListSources()
	if !strings.HasPrefix(sources[0], "alkis-bayern") {
		t.Errorf("first source = %q", sources[0])
	}
	found := false
	for _, s := range sources {
		if strings.TrimSpace(s) == "geofabrik/bayern" {
			found = true
		}
	}
	if !found {
		t.Error("geofabrik/bayern not listed")
	}
	if !strings.Contains(sources[1], "ogr2ogr") {
		t.Errorf("alkis-bayern should explain how to load the GeoPackage, got %q", sources[1])
	}
}

func TestSourceHints(t *testing.T) {
	alkis, err := ParseSource("alkis")
	if err != nil {
		t.Fatalf("ParseSource() error: %v", err)
	}
	if !strings.Contains(alkis.Hint, "--source postgis") {
		t.Errorf("alkis hint = %q, want the postgis import route", alkis.Hint)
	}
	if h := GeofabrikSource("bayern").Hint; h != "" {
		t.Errorf("PBF extracts are read as downloaded, got hint %q", h)
	}
}

func newTestFetcher(dir string) *Fetcher {
	f := NewFetcher(dir)
	f.retryDelay = time.Millisecond
	return f
}

func TestFetchRetriesAndSkipsExisting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := newTestFetcher(dir)
	src, err := ParseSource(srv.URL + "/tn_a.geojson")
	if err != nil {
		t.Fatal(err)
	}

	path, err := f.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if path != filepath.Join(dir, "tn_a.geojson") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "FeatureCollection") {
		t.Errorf("downloaded content = %q, %v", data, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	if _, err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("second Fetch() error: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server called %d times, want 2", n)
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	src, _ := ParseSource(srv.URL + "/missing.gpkg")
	_, err := newTestFetcher(dir).Fetch(context.Background(), src)
	if !errors.Is(err, dataset.ErrDatasetUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrDatasetUnavailable", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.gpkg")); !os.IsNotExist(err) {
		t.Error("failed download left a file")
	}
}

func TestFetchServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src, _ := ParseSource(srv.URL + "/x.pbf")
	_, err := newTestFetcher(t.TempDir()).Fetch(context.Background(), src)
	if !errors.Is(err, dataset.ErrDatasetUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrDatasetUnavailable", err)
	}
	if n := calls.Load(); n != 4 {
		t.Errorf("server called %d times, want 4", n)
	}
}
