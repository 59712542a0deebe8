package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/batch"
	"github.com/wegman-software/tilefilter/internal/landuse"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/metrics"
)

var (
	tileDir    string
	tileExt    string
	dryRun     bool
	reportPath string
)

var filterCmd = &cobra.Command{
	Use:   "filter <manifest.csv>",
	Short: "Delete tiles that do not lie on usable land",
	Long: `Read a tile manifest and delete every tile whose footprint overlaps land-use
features of which none is usable. Tiles on usable land, tiles without any
overlapping feature, and tiles that fail are kept.

Manifest format (CSV, optional header, # comments):
  tile_id,min_x,min_y,max_x,max_y

Tiles are processed in manifest order. Consecutive tiles of the same region
reuse the resident feature index, so manifests sorted by location run fastest.

Examples:
  # Preview what would be deleted
  tilefilter filter tiles.csv --tile-dir ./tiles --dry-run --report decisions.csv

  # Delete, keeping up to 4 regions resident
  tilefilter filter tiles.csv --tile-dir ./tiles --cache-capacity 4`,
	Args: cobra.ExactArgs(1),
	Run:  runFilter,
}

func init() {
	rootCmd.AddCommand(filterCmd)

	filterCmd.Flags().StringVar(&tileDir, "tile-dir", "", "Directory holding the tile images (required)")
	filterCmd.Flags().StringVar(&tileExt, "tile-ext", ".png", "File extension of tile images")
	filterCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decide but do not delete")
	filterCmd.Flags().StringVar(&reportPath, "report", "", "Write every decision to this CSV file")
	filterCmd.Flags().IntVar(&cfg.CacheCapacity, "cache-capacity", cfg.CacheCapacity, "Resident feature indexes (1 keeps only the current region)")
	filterCmd.Flags().DurationVar(&cfg.LoadTimeout, "load-timeout", cfg.LoadTimeout, "Bound on loading or building one feature index (0 = none)")
	filterCmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address (e.g. :9100)")
	filterCmd.MarkFlagRequired("tile-dir")
}

func runFilter(cmd *cobra.Command, args []string) {
	log := logger.Get()
	manifestPath := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()

	manifest, err := os.Open(manifestPath)
	if err != nil {
		exitWithError("failed to open manifest", err)
	}
	defer manifest.Close()
	var manifestSize int64
	if info, err := manifest.Stat(); err == nil {
		manifestSize = info.Size()
	}

	if info, err := os.Stat(tileDir); err != nil || !info.IsDir() {
		exitWithError(fmt.Sprintf("tile directory %s is not accessible", tileDir), err)
	}

	src, st, ri := openIndex(ctx, false)
	defer src.Close()
	defer st.Close()

	reg := metrics.NewRegistry()
	collector := startMetrics(ctx, reg, cfg.MetricsAddr)

	cache := landuse.NewCache(src, st, landuse.CacheOptions{
		Capacity:    cfg.CacheCapacity,
		LoadTimeout: cfg.LoadTimeout,
		Metrics:     metrics.NewCacheMetrics(reg),
	})

	opts := batch.Options{
		DryRun:        dryRun,
		Metrics:       metrics.NewBatchMetrics(reg),
		ProgressEvery: 10000,
	}

	var report *batch.CSVReport
	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			exitWithError("failed to create report", err)
		}
		defer f.Close()
		report, err = batch.NewCSVReport(f)
		if err != nil {
			exitWithError("failed to write report", err)
		}
		opts.Reporter = report
	}

	log.Info("Filtering tiles",
		zap.String("manifest", manifestPath),
		zap.String("tile_dir", tileDir),
		zap.Int("regions", ri.Len()),
		zap.Int("cache_capacity", cfg.CacheCapacity),
		zap.Bool("dry_run", dryRun))

	driver := batch.NewDriver(ri, cache, cfg.Labels(), batch.DirAssets{Dir: tileDir, Ext: tileExt}, opts)
	sum, runErr := driver.Run(ctx, batch.NewManifestReader(manifest), manifestSize)

	if report != nil {
		if err := report.Flush(); err != nil {
			log.Error("Failed to flush report", zap.Error(err))
		}
	}

	stats := cache.Stats()
	log.Info("Cache statistics",
		zap.Int64("hits", stats.Hits),
		zap.Int64("misses", stats.Misses),
		zap.Int64("rebuilds", stats.Rebuilds),
		zap.Int64("evictions", stats.Evictions),
		zap.Int64("persisted_hits", stats.LoadHits),
		zap.Int64("persisted_corrupt", stats.LoadCorrupt))

	logResources(collector)

	for _, te := range sum.Errors {
		log.Warn("Tile error", zap.String("error", te.Error()))
	}

	if runErr != nil {
		exitWithError(fmt.Sprintf("filter stopped after %d tiles", sum.Tiles), runErr)
	}

	verb := "Deleted"
	if dryRun {
		verb = "Would delete"
	}
	fmt.Printf("%s %d of %d tiles (%d without land-use match, %d errors)\n",
		verb, sum.Deleted, sum.Tiles, sum.NoMatch, len(sum.Errors))
	log.Info("Filter complete", elapsed(start))
}
