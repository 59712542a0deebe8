package osmpbf

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/nodeindex"
	"github.com/wegman-software/tilefilter/internal/proj"
)

func ring(ids ...osm.NodeID) osm.WayNodes {
	nodes := make(osm.WayNodes, len(ids))
	for i, id := range ids {
		nodes[i] = osm.WayNode{ID: id}
	}
	return nodes
}

func TestIsClosed(t *testing.T) {
	tests := []struct {
		name  string
		nodes osm.WayNodes
		want  bool
	}{
		{"closed square", ring(1, 2, 3, 4, 1), true},
		{"closed triangle", ring(1, 2, 3, 1), true},
		{"open line", ring(1, 2, 3, 4), false},
		{"degenerate", ring(1, 2, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isClosed(&osm.Way{Nodes: tt.nodes}); got != tt.want {
				t.Errorf("isClosed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWayBounds(t *testing.T) {
	src, err := NewSource(t.TempDir(), Options{TargetSRID: proj.SRID4326})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}

	idx, err := nodeindex.NewMmapIndex(filepath.Join(t.TempDir(), "nodes.bin"), 100)
	if err != nil {
		t.Fatalf("NewMmapIndex() error: %v", err)
	}
	defer idx.Close()

	idx.Put(1, 48.0, 11.0)
	idx.Put(2, 48.0, 11.5)
	idx.Put(3, 48.5, 11.5)

	bounds, ok := src.wayBounds(&osm.Way{Nodes: ring(1, 2, 3, 1)}, idx)
	if !ok {
		t.Fatal("expected bounds for complete way")
	}
	want := geom.BBox{MinX: 11.0, MinY: 48.0, MaxX: 11.5, MaxY: 48.5}
	if bounds != want {
		t.Errorf("wayBounds() = %v, want %v", bounds, want)
	}

	if _, ok := src.wayBounds(&osm.Way{Nodes: ring(1, 2, 42, 1)}, idx); ok {
		t.Error("expected incomplete way to be rejected")
	}
}

func TestSourceErrors(t *testing.T) {
	if _, err := NewSource(filepath.Join(t.TempDir(), "missing"), Options{TargetSRID: proj.SRID25832}); !errors.Is(err, dataset.ErrDatasetUnavailable) {
		t.Errorf("expected ErrDatasetUnavailable, got %v", err)
	}
	if _, err := NewSource(t.TempDir(), Options{TargetSRID: 2056}); err == nil {
		t.Error("expected error for unsupported SRID")
	}

	src, err := NewSource(t.TempDir(), Options{TargetSRID: proj.SRID25832})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	if _, err := src.Features(context.Background(), "oberbayern"); !errors.Is(err, dataset.ErrRegionNotFound) {
		t.Errorf("expected ErrRegionNotFound, got %v", err)
	}

	regions, err := src.Regions(context.Background())
	if err != nil {
		t.Fatalf("Regions() error: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("expected no regions in empty dir, got %v", regions)
	}
}
