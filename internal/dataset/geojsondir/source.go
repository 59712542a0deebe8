// Package geojsondir reads a land-use dataset laid out as one GeoJSON
// FeatureCollection per region: <dir>/<region>.geojson
package geojsondir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/logger"
)

const fileExt = ".geojson"

// Source implements dataset.Source over a directory of GeoJSON files
type Source struct {
	dir        string
	labelField string
	workers    int
}

// NewSource opens a GeoJSON dataset directory
func NewSource(dir, labelField string, workers int) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrDatasetUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", dataset.ErrDatasetUnavailable, dir)
	}
	if workers < 1 {
		workers = 1
	}
	return &Source{dir: dir, labelField: labelField, workers: workers}, nil
}

// Regions lists every <region>.geojson file and computes its bounds.
// Every file is parsed, so this is as expensive as reading the whole dataset.
func (s *Source) Regions(ctx context.Context) ([]dataset.Region, error) {
	log := logger.Named("geojson")

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrDatasetUnavailable, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), fileExt))
	}

	var mu sync.Mutex
	regions := make([]dataset.Region, 0, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			features, err := s.Features(gctx, id)
			if err != nil {
				return err
			}
			if len(features) == 0 {
				log.Debug("Skipping empty region", zap.String("region", id))
				return nil
			}
			bounds := features[0].Bounds
			for _, f := range features[1:] {
				bounds.Expand(f.Bounds)
			}
			mu.Lock()
			regions = append(regions, dataset.Region{ID: id, Bounds: bounds})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dataset.SortRegions(regions)
	log.Debug("Listed regions", zap.Int("regions", len(regions)), zap.String("dir", s.dir))
	return regions, nil
}

// Features parses <dir>/<regionID>.geojson
func (s *Source) Features(ctx context.Context, regionID string) ([]dataset.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if regionID == "" || strings.ContainsAny(regionID, `/\`) {
		return nil, fmt.Errorf("%w: invalid id %q", dataset.ErrRegionNotFound, regionID)
	}

	path := filepath.Join(s.dir, regionID+fileExt)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrRegionNotFound, regionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrDatasetUnavailable, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features := make([]dataset.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		label, _ := f.Properties[s.labelField].(string)
		features = append(features, dataset.Feature{
			Bounds: geom.NewBBox(b.Min[0], b.Min[1], b.Max[0], b.Max[1]),
			Label:  label,
		})
	}
	return features, nil
}

// Close implements dataset.Source
func (s *Source) Close() error { return nil }
