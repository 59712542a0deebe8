package cmd

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/landuse"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/metrics"
)

var warmBBox string

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-build the persisted feature indexes",
	Long: `Build and persist the feature index of every region, or of the regions
overlapping --bbox, so that a later filter run only loads them.

Regions are built in parallel (--workers). Indexes that are already persisted
and valid are left alone.

Examples:
  tilefilter warm -j 8
  tilefilter warm --bbox 680000,5320000,700000,5345000`,
	Run: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)
	warmCmd.Flags().StringVar(&warmBBox, "bbox", "", "Only warm regions overlapping minx,miny,maxx,maxy")
}

func runWarm(cmd *cobra.Command, args []string) {
	log := logger.Get()
	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	src, st, ri := openIndex(ctx, false)
	defer src.Close()
	defer st.Close()

	collector := startMetrics(ctx, metrics.NewRegistry(), "")

	regions := ri.Regions()
	if warmBBox != "" {
		box, err := geom.ParseBBox(warmBBox)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		regions = ri.Candidates(box)
	}

	log.Info("Warming feature indexes", zap.Int("regions", len(regions)), zap.Int("workers", cfg.Workers))

	var loaded, built, missing atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, r := range regions {
		g.Go(func() error {
			_, outcome, err := landuse.LoadOrBuildFeatureIndex(gctx, src, st, r.ID)
			if errors.Is(err, dataset.ErrRegionNotFound) {
				log.Warn("Region missing from dataset", zap.String("region", r.ID))
				missing.Add(1)
				return nil
			}
			if err != nil {
				return err
			}
			if outcome == landuse.LoadHit {
				loaded.Add(1)
			} else {
				built.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		exitWithError("failed to warm feature indexes", err)
	}

	logResources(collector)
	log.Info("Warm complete",
		zap.Int64("already_persisted", loaded.Load()),
		zap.Int64("built", built.Load()),
		zap.Int64("missing", missing.Load()),
		elapsed(start))
}
