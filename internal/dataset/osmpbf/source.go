// Package osmpbf reads land use from a directory of regional OpenStreetMap
// extracts: <dir>/<region>.osm.pbf. Closed ways carrying the label key become
// features; their bounds are projected into the dataset CRS.
package osmpbf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/nodeindex"
	"github.com/wegman-software/tilefilter/internal/proj"
)

const fileExt = ".osm.pbf"

// Options configures a PBF source
type Options struct {
	LabelKey   string // tag key whose value is the land-use label
	TargetSRID int    // CRS of the emitted bounds
	TempDir    string // where node indexes are created
	MaxNodeID  int64  // size of the node index address space
	Workers    int
}

// Source implements dataset.Source over OSM PBF extracts
type Source struct {
	dir  string
	opts Options
	tr   *proj.Transformer
}

// NewSource opens a PBF dataset directory
func NewSource(dir string, opts Options) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrDatasetUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", dataset.ErrDatasetUnavailable, dir)
	}

	tr, err := proj.NewTransformer(proj.SRID4326, opts.TargetSRID)
	if err != nil {
		return nil, err
	}
	if opts.LabelKey == "" {
		opts.LabelKey = "landuse"
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Source{dir: dir, opts: opts, tr: tr}, nil
}

// Close implements dataset.Source
func (s *Source) Close() error { return nil }

// Regions scans the nodes of every extract to compute its projected bounds
func (s *Source) Regions(ctx context.Context) ([]dataset.Region, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrDatasetUnavailable, err)
	}

	var mu sync.Mutex
	var regions []dataset.Region

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), fileExt)
		g.Go(func() error {
			bounds, ok, err := s.scanBounds(gctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return nil
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
	return regions, nil
}

func (s *Source) open(regionID string) (*os.File, error) {
	if regionID == "" || strings.ContainsAny(regionID, `/\`) {
		return nil, fmt.Errorf("%w: invalid id %q", dataset.ErrRegionNotFound, regionID)
	}
	f, err := os.Open(filepath.Join(s.dir, regionID+fileExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrRegionNotFound, regionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrDatasetUnavailable, err)
	}
	return f, nil
}

// scanBounds returns the projected bounds of all nodes in an extract
func (s *Source) scanBounds(ctx context.Context, regionID string) (geom.BBox, bool, error) {
	f, err := s.open(regionID)
	if err != nil {
		return geom.BBox{}, false, err
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true

	var bounds geom.BBox
	seen := false
	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		x, y := s.tr.Transform(n.Lon, n.Lat)
		if !seen {
			bounds = geom.BBox{MinX: x, MinY: y, MaxX: x, MaxY: y}
			seen = true
			continue
		}
		bounds.ExpandPoint(x, y)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return geom.BBox{}, false, fmt.Errorf("failed to scan %s: %w", regionID, err)
	}
	return bounds, seen, nil
}

// Features runs the two-pass extraction: node coordinates into an mmap
// index, then closed labelled ways into projected bounding boxes.
func (s *Source) Features(ctx context.Context, regionID string) ([]dataset.Feature, error) {
	log := logger.Named("osmpbf")

	f, err := s.open(regionID)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := nodeindex.NewMmapIndex(filepath.Join(s.opts.TempDir, regionID+".nodes"), s.opts.MaxNodeID)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	// Pass 1: node coordinates
	start := time.Now()
	nodes, err := s.indexNodes(ctx, f, idx)
	if err != nil {
		return nil, err
	}
	log.Debug("Pass 1 complete",
		zap.String("region", regionID),
		zap.Int64("nodes", nodes),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// Pass 2: labelled closed ways
	start = time.Now()
	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	var features []dataset.Feature
	var skipped int
	for scanner.Scan() {
		way, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		label := way.Tags.Find(s.opts.LabelKey)
		if label == "" || !isClosed(way) {
			continue
		}
		bounds, ok := s.wayBounds(way, idx)
		if !ok {
			skipped++
			continue
		}
		features = append(features, dataset.Feature{Bounds: bounds, Label: label})
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to scan %s: %w", regionID, err)
	}

	log.Debug("Pass 2 complete",
		zap.String("region", regionID),
		zap.Int("features", len(features)),
		zap.Int("skipped_incomplete", skipped),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	return features, nil
}

func (s *Source) indexNodes(ctx context.Context, f *os.File, idx *nodeindex.MmapIndex) (int64, error) {
	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true

	var count int64
	for scanner.Scan() {
		if n, ok := scanner.Object().(*osm.Node); ok {
			idx.Put(int64(n.ID), n.Lat, n.Lon)
			count++
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return 0, err
	}
	return count, nil
}

// wayBounds projects every node of the way; false if any node is missing
func (s *Source) wayBounds(way *osm.Way, idx *nodeindex.MmapIndex) (geom.BBox, bool) {
	var bounds geom.BBox
	for i, ref := range way.Nodes {
		lat, lon, ok := idx.Get(int64(ref.ID))
		if !ok {
			return geom.BBox{}, false
		}
		x, y := s.tr.Transform(lon, lat)
		if i == 0 {
			bounds = geom.BBox{MinX: x, MinY: y, MaxX: x, MaxY: y}
			continue
		}
		bounds.ExpandPoint(x, y)
	}
	return bounds, len(way.Nodes) > 0
}

// isClosed checks whether a way forms a ring
func isClosed(way *osm.Way) bool {
	return len(way.Nodes) >= 4 && way.Nodes[0].ID == way.Nodes[len(way.Nodes)-1].ID
}
