// Package dataset defines the land-use source contract: a fixed set of
// administrative regions, each carrying land-use features.
package dataset

import (
	"context"
	"errors"
	"sort"

	"github.com/wegman-software/tilefilter/internal/geom"
)

var (
	// ErrDatasetUnavailable means the source cannot be read at all.
	// Callers treat it as fatal for the whole batch.
	ErrDatasetUnavailable = errors.New("dataset unavailable")

	// ErrRegionNotFound means a region identifier does not resolve in the source
	ErrRegionNotFound = errors.New("region not found")
)

// Region describes one administrative partition of the dataset
type Region struct {
	ID     string
	Bounds geom.BBox
}

// Feature is a single land-use polygon reduced to its bounding box
type Feature struct {
	Bounds geom.BBox
	Label  string
}

// Source yields regions and their features
type Source interface {
	// Regions lists every region with its bounds
	Regions(ctx context.Context) ([]Region, error)
	// Features returns all features of a region in source order.
	// Unknown identifiers return an error wrapping ErrRegionNotFound.
	Features(ctx context.Context, regionID string) ([]Feature, error)
	Close() error
}

// SortRegions orders regions by identifier
func SortRegions(regions []Region) {
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].ID < regions[j].ID
	})
}
