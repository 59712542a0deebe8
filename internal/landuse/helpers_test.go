package landuse

import (
	"sync"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/store"
)

// countingStore is an in-memory store that records reads and writes per key
type countingStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   map[string]int
	puts   map[string]int
	putErr error
}

func newCountingStore() *countingStore {
	return &countingStore{
		data: make(map[string][]byte),
		gets: make(map[string]int),
		puts: make(map[string]int),
	}
}

func (s *countingStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[key]++
	v, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *countingStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[key]++
	if s.putErr != nil {
		return s.putErr
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *countingStore) Close() error { return nil }

// touched reports whether any key of the region was read or written
func (s *countingStore) touched(regionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{TreeKey(regionID), LabelsKey(regionID)} {
		if s.gets[key] > 0 || s.puts[key] > 0 {
			return true
		}
	}
	return false
}

func box(minX, minY, maxX, maxY float64) geom.BBox {
	return geom.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// scenarioSource has region A=(0,0,10,10) with a usable feature (0,0,5,5)
// and region B=(10,0,20,10) with a "Wald" feature (10,0,15,5)
func scenarioSource() *dataset.Memory {
	src := dataset.NewMemory()
	src.AddRegion(dataset.Region{ID: "A", Bounds: box(0, 0, 10, 10)},
		dataset.Feature{Bounds: box(0, 0, 5, 5), Label: "Wohnbaufläche"})
	src.AddRegion(dataset.Region{ID: "B", Bounds: box(10, 0, 20, 10)},
		dataset.Feature{Bounds: box(10, 0, 15, 5), Label: "Wald"})
	return src
}
