// Package landuse implements the two-tier land-use index: a small index of
// administrative regions over a per-region index of land-use features, with
// a cache that keeps the most recently used feature index resident.
package landuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/parquet"
	"github.com/wegman-software/tilefilter/internal/store"
)

// RegionIndex answers which regions a box may touch.
// It is immutable once built.
type RegionIndex struct {
	regions []dataset.Region // sorted by ID; ordinal in tree
	tree    *geom.Tree
}

// NewRegionIndex indexes the given regions
func NewRegionIndex(regions []dataset.Region) *RegionIndex {
	sorted := make([]dataset.Region, len(regions))
	for i, r := range regions {
		sorted[i] = dataset.Region{ID: r.ID, Bounds: r.Bounds.Normalize()}
	}
	dataset.SortRegions(sorted)

	tree := geom.NewTree()
	for i, r := range sorted {
		tree.Insert(i, r.Bounds)
	}
	return &RegionIndex{regions: sorted, tree: tree}
}

// BuildRegionIndex enumerates all regions of the source
func BuildRegionIndex(ctx context.Context, src dataset.Source) (*RegionIndex, error) {
	regions, err := src.Regions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	return NewRegionIndex(regions), nil
}

// Candidates returns every region whose bounds overlap box, ordered by ID.
// Touching edges count as overlap.
func (ri *RegionIndex) Candidates(box geom.BBox) []dataset.Region {
	ordinals := ri.tree.Search(box.Normalize())
	out := make([]dataset.Region, len(ordinals))
	for i, ord := range ordinals {
		out[i] = ri.regions[ord]
	}
	return out
}

// Regions returns all regions ordered by ID
func (ri *RegionIndex) Regions() []dataset.Region {
	return append([]dataset.Region(nil), ri.regions...)
}

// Len returns the number of regions
func (ri *RegionIndex) Len() int {
	return len(ri.regions)
}

// Persist writes the region list under the region index key
func (ri *RegionIndex) Persist(st store.Store) error {
	data, err := parquet.EncodeRegions(ri.regions)
	if err != nil {
		return err
	}
	return st.Put(regionIndexKey, data)
}

// LoadRegionIndex reads a persisted region index. The error is set only for
// LoadCorrupt and describes what was wrong.
func LoadRegionIndex(ctx context.Context, st store.Store) (*RegionIndex, LoadOutcome, error) {
	if st == nil {
		return nil, LoadNotFound, nil
	}
	data, err := st.Get(regionIndexKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, LoadNotFound, nil
	}
	if err != nil {
		return nil, LoadCorrupt, err
	}

	regions, _, err := parquet.DecodeRegions(ctx, data)
	if err != nil {
		return nil, LoadCorrupt, err
	}
	return NewRegionIndex(regions), LoadHit, nil
}

// LoadOrBuildRegionIndex uses the persisted region index when it is valid and
// otherwise rebuilds it from the source and persists it again. rebuild skips
// the persisted copy. A nil store disables persistence. A failure to persist is logged and does not fail the call.
func LoadOrBuildRegionIndex(ctx context.Context, src dataset.Source, st store.Store, rebuild bool) (*RegionIndex, LoadOutcome, error) {
	log := logger.Named("regions")

	outcome := LoadNotFound
	if !rebuild {
		ri, o, err := LoadRegionIndex(ctx, st)
		if o == LoadHit {
			log.Debug("Loaded region index", zap.Int("regions", ri.Len()))
			return ri, o, nil
		}
		if o == LoadCorrupt {
			log.Warn("Persisted region index unusable, rebuilding", zap.Error(err))
		}
		outcome = o
	}

	start := time.Now()
	ri, err := BuildRegionIndex(ctx, src)
	if err != nil {
		return nil, outcome, err
	}
	log.Info("Built region index",
		zap.Int("regions", ri.Len()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	if st != nil {
		if err := ri.Persist(st); err != nil {
			log.Warn("Failed to persist region index", zap.Error(err))
		}
	}
	return ri, outcome, nil
}
