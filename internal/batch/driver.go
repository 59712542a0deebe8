// Package batch runs a stream of tiles through the land-use index and
// deletes the tiles that lie on land that is not usable.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/landuse"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/metrics"
)

// Action is what happens to a tile
type Action string

const (
	ActionKeep   Action = "keep"
	ActionDelete Action = "delete"
)

// Reason explains an action
type Reason string

const (
	ReasonUsable    Reason = "usable"     // overlaps a usable feature
	ReasonNotUsable Reason = "not-usable" // overlaps only features that are not usable
	ReasonNoMatch   Reason = "no-match"   // no feature of any candidate region overlaps
	ReasonError     Reason = "error"      // kept because the tile could not be decided or deleted
)

// Decision is the outcome for one tile
type Decision struct {
	TileID string
	Action Action
	Reason Reason
	Region string // deciding region, empty for no-match
	Err    error
}

// TileError records a tile that failed without stopping the batch
type TileError struct {
	TileID string
	Line   int // manifest line for unparseable rows
	Err    error
}

func (e TileError) Error() string {
	if e.TileID == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("tile %s: %v", e.TileID, e.Err)
}

// Summary counts the decisions of a run
type Summary struct {
	Tiles    int
	Kept     int
	Deleted  int // tiles deleted, or that would be deleted in a dry run
	NoMatch  int
	Errors   []TileError
	Duration time.Duration
}

// Options configures a Driver
type Options struct {
	DryRun        bool
	Reporter      Reporter
	Metrics       *metrics.BatchMetrics
	ProgressEvery int // log progress every n tiles, 0 disables
}

// Driver applies the decision protocol to a tile stream
type Driver struct {
	regions *landuse.RegionIndex
	cache   *landuse.Cache
	labels  landuse.LabelSet
	assets  AssetStore
	opts    Options
	log     *zap.Logger
}

// NewDriver creates a driver for one batch run
func NewDriver(regions *landuse.RegionIndex, cache *landuse.Cache, labels landuse.LabelSet, assets AssetStore, opts Options) *Driver {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewBatchMetrics(nil)
	}
	return &Driver{
		regions: regions,
		cache:   cache,
		labels:  labels,
		assets:  assets,
		opts:    opts,
		log:     logger.Named("batch"),
	}
}

// Decide classifies one tile. The resident region is tried first when it is
// a candidate; the first candidate with any overlapping feature decides.
// Regions missing from the dataset are skipped.
func (d *Driver) Decide(ctx context.Context, tile Tile) (Decision, error) {
	dec := Decision{TileID: tile.ID}

	for _, region := range d.order(d.regions.Candidates(tile.Box)) {
		fi, err := d.cache.Resolve(ctx, region.ID)
		if errors.Is(err, dataset.ErrRegionNotFound) {
			d.log.Warn("Candidate region missing from dataset",
				zap.String("tile", tile.ID),
				zap.String("region", region.ID))
			continue
		}
		if err != nil {
			return dec, fmt.Errorf("region %s: %w", region.ID, err)
		}

		usable, match := landuse.Classify(tile.Box, fi, d.labels)
		if !match {
			continue
		}
		dec.Region = region.ID
		if usable {
			dec.Action, dec.Reason = ActionKeep, ReasonUsable
		} else {
			dec.Action, dec.Reason = ActionDelete, ReasonNotUsable
		}
		return dec, nil
	}

	dec.Action, dec.Reason = ActionKeep, ReasonNoMatch
	return dec, nil
}

// order moves the resident region to the front, keeping the rest in ID order
func (d *Driver) order(candidates []dataset.Region) []dataset.Region {
	resident, ok := d.cache.Resident()
	if !ok {
		return candidates
	}
	for i, r := range candidates {
		if r.ID != resident {
			continue
		}
		if i == 0 {
			return candidates
		}
		out := make([]dataset.Region, 0, len(candidates))
		out = append(out, r)
		out = append(out, candidates[:i]...)
		return append(out, candidates[i+1:]...)
	}
	return candidates
}

// Run processes tiles until the source is exhausted. Per-tile failures are
// collected in the summary; an unavailable dataset, a cancelled context, a
// failing reporter or an unreadable source stop the run.
// totalBytes sizes progress estimates for a *ManifestReader and may be 0.
func (d *Driver) Run(ctx context.Context, tiles TileSource, totalBytes int64) (sum Summary, err error) {
	start := time.Now()
	prog := newProgress(totalBytes)
	defer func() { sum.Duration = time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		tile, err := tiles.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			d.log.Warn("Skipping malformed manifest row", zap.Int("line", rowErr.Line), zap.Error(rowErr.Err))
			sum.Errors = append(sum.Errors, TileError{Line: rowErr.Line, Err: rowErr.Err})
			d.opts.Metrics.TileErrors.Inc()
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("failed to read tiles: %w", err)
		}

		dec, err := d.Decide(ctx, tile)
		if err != nil {
			if errors.Is(err, dataset.ErrDatasetUnavailable) || ctx.Err() != nil {
				return sum, err
			}
			dec = Decision{TileID: tile.ID, Action: ActionKeep, Reason: ReasonError, Err: err}
		} else if dec.Action == ActionDelete && !d.opts.DryRun {
			if err := d.assets.Delete(tile.ID); err != nil {
				dec = Decision{TileID: tile.ID, Action: ActionKeep, Reason: ReasonError, Region: dec.Region, Err: err}
			}
		}

		if err := d.record(&sum, dec); err != nil {
			return sum, err
		}

		if n := d.opts.ProgressEvery; n > 0 && sum.Tiles%n == 0 {
			d.logProgress(sum, prog, tiles)
		}
	}

	d.log.Info("Batch complete",
		zap.Int("tiles", sum.Tiles),
		zap.Int("kept", sum.Kept),
		zap.Int("deleted", sum.Deleted),
		zap.Int("no_match", sum.NoMatch),
		zap.Int("errors", len(sum.Errors)),
		zap.Bool("dry_run", d.opts.DryRun),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return sum, nil
}

func (d *Driver) record(sum *Summary, dec Decision) error {
	sum.Tiles++
	switch {
	case dec.Reason == ReasonError:
		sum.Kept++
		sum.Errors = append(sum.Errors, TileError{TileID: dec.TileID, Err: dec.Err})
		d.opts.Metrics.TileErrors.Inc()
		d.log.Warn("Tile failed", zap.String("tile", dec.TileID), zap.Error(dec.Err))
	case dec.Action == ActionDelete:
		sum.Deleted++
	default:
		sum.Kept++
		if dec.Reason == ReasonNoMatch {
			sum.NoMatch++
		}
	}
	d.opts.Metrics.Decisions.WithLabelValues(string(dec.Action), string(dec.Reason)).Inc()

	if d.opts.Reporter != nil {
		if err := d.opts.Reporter.Report(dec); err != nil {
			return fmt.Errorf("failed to report tile %s: %w", dec.TileID, err)
		}
	}
	return nil
}

func (d *Driver) logProgress(sum Summary, prog *progress, tiles TileSource) {
	fields := []zap.Field{
		zap.Int("tiles", sum.Tiles),
		zap.Int("deleted", sum.Deleted),
		zap.String("rate", fmt.Sprintf("%.0f/s", prog.throughput(sum.Tiles))),
	}
	if mr, ok := tiles.(*ManifestReader); ok {
		if pct := prog.percent(mr.Offset()); pct >= 0 {
			fields = append(fields,
				zap.String("progress", fmt.Sprintf("%.1f%%", pct)),
				zap.String("eta", formatETA(prog.eta(mr.Offset()))))
		}
	}
	if id, ok := d.cache.Resident(); ok {
		fields = append(fields, zap.String("resident", id))
	}
	d.log.Info("Filtering tiles", fields...)
}
