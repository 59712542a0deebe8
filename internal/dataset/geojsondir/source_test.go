package geojsondir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
)

const regionA = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"nutzart": "Wohnbaufläche"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[5,0],[5,5],[0,5],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"nutzart": "Wald"},
      "geometry": {"type": "Polygon", "coordinates": [[[6,2],[10,2],[10,10],[6,2]]]}
    }
  ]
}`

const regionB = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"nutzart": "Wald", "other": 3},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[10,0],[15,0],[15,5],[10,0]]],[[[18,8],[20,8],[20,10],[18,8]]]]}
    }
  ]
}`

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"tn_a.geojson": regionA,
		"tn_b.geojson": regionB,
		"notes.txt":    "not a region",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestRegions(t *testing.T) {
	src, err := NewSource(writeDataset(t), "nutzart", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	regions, err := src.Regions(context.Background())
	if err != nil {
		t.Fatalf("Regions() error: %v", err)
	}

	want := []dataset.Region{
		{ID: "tn_a", Bounds: geom.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}},
		{ID: "tn_b", Bounds: geom.BBox{MinX: 10, MinY: 0, MaxX: 20, MaxY: 10}},
	}
	if len(regions) != len(want) {
		t.Fatalf("Regions() = %v, want %v", regions, want)
	}
	for i := range want {
		if regions[i] != want[i] {
			t.Errorf("region %d = %v, want %v", i, regions[i], want[i])
		}
	}
}

func TestFeatures(t *testing.T) {
	src, err := NewSource(writeDataset(t), "nutzart", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	features, err := src.Features(context.Background(), "tn_a")
	if err != nil {
		t.Fatalf("Features() error: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(features))
	}
	if features[0].Label != "Wohnbaufläche" {
		t.Errorf("label = %q, want Wohnbaufläche", features[0].Label)
	}
	if features[0].Bounds != (geom.BBox{MinX: 0, MinY: 0, MaxX: 5, MaxY: 5}) {
		t.Errorf("bounds = %v", features[0].Bounds)
	}
	if features[1].Bounds != (geom.BBox{MinX: 6, MinY: 2, MaxX: 10, MaxY: 10}) {
		t.Errorf("bounds = %v", features[1].Bounds)
	}
}

func TestFeaturesRegionNotFound(t *testing.T) {
	src, err := NewSource(writeDataset(t), "nutzart", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"tn_missing", "../tn_a", ""} {
		_, err := src.Features(context.Background(), id)
		if !errors.Is(err, dataset.ErrRegionNotFound) {
			t.Errorf("Features(%q) error = %v, want ErrRegionNotFound", id, err)
		}
	}
}

func TestNewSourceMissingDir(t *testing.T) {
	_, err := NewSource(filepath.Join(t.TempDir(), "nope"), "nutzart", 1)
	if !errors.Is(err, dataset.ErrDatasetUnavailable) {
		t.Errorf("expected ErrDatasetUnavailable, got %v", err)
	}
}
