package dataset

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a static in-memory source. It records how often features were
// read per region so callers can observe source I/O.
type Memory struct {
	mu       sync.Mutex
	regions  []Region
	features map[string][]Feature
	reads    map[string]int
}

// NewMemory creates an empty in-memory source
func NewMemory() *Memory {
	return &Memory{
		features: make(map[string][]Feature),
		reads:    make(map[string]int),
	}
}

// AddRegion registers a region and its features. Region bounds are taken as
// given and not derived from the features.
func (m *Memory) AddRegion(r Region, features ...Feature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = append(m.regions, r)
	m.features[r.ID] = append([]Feature(nil), features...)
}

// Regions implements Source
func (m *Memory) Regions(ctx context.Context) ([]Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Region(nil), m.regions...)
	SortRegions(out)
	return out, nil
}

// Features implements Source
func (m *Memory) Features(ctx context.Context, regionID string) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[regionID]++
	fs, ok := m.features[regionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, regionID)
	}
	return append([]Feature(nil), fs...), nil
}

// Reads returns how many times Features was called for a region
func (m *Memory) Reads(regionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[regionID]
}

// Close implements Source
func (m *Memory) Close() error { return nil }
