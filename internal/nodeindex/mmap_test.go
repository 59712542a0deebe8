package nodeindex

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestPutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	idx, err := NewMmapIndex(path, 1000)
	if err != nil {
		t.Fatalf("NewMmapIndex() error: %v", err)
	}
	defer idx.Close()

	idx.Put(1, 48.137154, 11.576124)
	idx.Put(999, -33.5, 151.25)
	idx.Put(1000, 1, 1) // out of range, ignored
	idx.Put(-1, 1, 1)

	tests := []struct {
		id      int64
		wantLat float64
		wantLon float64
		wantOK  bool
	}{
		{1, 48.137154, 11.576124, true},
		{999, -33.5, 151.25, true},
		{2, 0, 0, false},
		{1000, 0, 0, false},
		{-1, 0, 0, false},
	}

	for _, tt := range tests {
		lat, lon, ok := idx.Get(tt.id)
		if ok != tt.wantOK {
			t.Errorf("Get(%d) ok = %v, want %v", tt.id, ok, tt.wantOK)
			continue
		}
		if math.Abs(lat-tt.wantLat) > 2e-7 || math.Abs(lon-tt.wantLon) > 2e-7 {
			t.Errorf("Get(%d) = (%f, %f), want (%f, %f)", tt.id, lat, lon, tt.wantLat, tt.wantLon)
		}
	}

	if err := idx.Sync(); err != nil {
		t.Errorf("Sync() error: %v", err)
	}
}

func TestCloseRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	idx, err := NewMmapIndex(path, 16)
	if err != nil {
		t.Fatalf("NewMmapIndex() error: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected backing file to be removed, stat error = %v", err)
	}
}
