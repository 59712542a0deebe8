package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/config"
	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/dataset/geojsondir"
	"github.com/wegman-software/tilefilter/internal/dataset/osmpbf"
	"github.com/wegman-software/tilefilter/internal/dataset/postgis"
	"github.com/wegman-software/tilefilter/internal/landuse"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/metrics"
	"github.com/wegman-software/tilefilter/internal/proj"
	"github.com/wegman-software/tilefilter/internal/store"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
	sridFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "tilefilter",
	Short: "Delete image tiles that do not lie on usable land",
	Long: `tilefilter classifies raster tiles against a land-use dataset and deletes
the tiles whose footprint only touches land-use classes that are not usable.

The dataset is split into administrative regions. A small region index finds
the regions a tile may touch; each region has its own feature index that is
built on first use, persisted to the cache directory, and kept resident while
consecutive tiles stay in the same region.

Dataset sources:
  - geojson: a directory of <region>.geojson files
  - postgis: one table per region (e.g. an ALKIS GeoPackage loaded with ogr2ogr)
  - osmpbf:  a directory of <region>.osm.pbf extracts`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := applyConfigFile(cmd.Flags(), configFile); err != nil {
				return err
			}
		}
		if sridFlag != "" {
			srid, err := proj.ParseSRID(sridFlag)
			if err != nil {
				return err
			}
			cfg.SRID = srid
		}

		logger.Setup(logger.Options{Debug: cfg.Verbose, File: cfg.LogFile})

		return cfg.Validate()
	},
}

func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (flags given on the command line take precedence)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	// Dataset flags
	rootCmd.PersistentFlags().StringVarP(&cfg.Source, "source", "s", cfg.Source, "Dataset source: geojson, postgis or osmpbf")
	rootCmd.PersistentFlags().StringVar(&cfg.DatasetDir, "dataset-dir", cfg.DatasetDir, "Dataset directory (geojson and osmpbf sources)")
	rootCmd.PersistentFlags().StringVar(&cfg.LabelField, "label-field", "", "Attribute holding the land-use class (default nutzart, landuse for osmpbf)")
	rootCmd.PersistentFlags().StringVar(&sridFlag, "srid", "", "CRS of tile boxes, e.g. 25832 or EPSG:3857 (default 25832); osmpbf features are projected into it")
	rootCmd.PersistentFlags().StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "Directory for node index files (osmpbf source)")

	// Persisted index flags
	rootCmd.PersistentFlags().StringVar(&cfg.Store, "store", cfg.Store, "Persisted index store: file or pebble")
	rootCmd.PersistentFlags().StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory of the persisted indexes")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m)")

	// Database flags (postgis source)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema holding one table per region")
	rootCmd.PersistentFlags().IntVar(&cfg.DBMaxConns, "db-max-conns", cfg.DBMaxConns, "Maximum PostgreSQL connections")
}

// applyConfigFile overlays the YAML file onto cfg and then restores every
// flag given explicitly on the command line
func applyConfigFile(flags *pflag.FlagSet, path string) error {
	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := cfg.LoadFile(path); err != nil {
		return err
	}

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("failed to restore flag --%s: %w", name, err)
		}
	}
	return nil
}

// openSource opens the configured dataset
func openSource(ctx context.Context) (dataset.Source, error) {
	switch cfg.Source {
	case config.SourcePostGIS:
		return postgis.NewSource(ctx, cfg.ConnectionString(), cfg.DBSchema, cfg.LabelKey(), cfg.DBMaxConns)
	case config.SourceOSMPBF:
		return osmpbf.NewSource(cfg.DatasetDir, osmpbf.Options{
			LabelKey:   cfg.LabelKey(),
			TargetSRID: cfg.SRID,
			TempDir:    cfg.TempDir,
			Workers:    cfg.Workers,
		})
	default:
		return geojsondir.NewSource(cfg.DatasetDir, cfg.LabelKey(), cfg.Workers)
	}
}

// openStore opens the configured persisted-index store
func openStore() (store.Store, error) {
	if cfg.Store == config.StorePebble {
		if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		return store.OpenPebble(cfg.StorePath())
	}
	return store.NewFileStore(cfg.StorePath())
}

// openIndex opens source and store and loads the region index
func openIndex(ctx context.Context, rebuild bool) (dataset.Source, store.Store, *landuse.RegionIndex) {
	src, err := openSource(ctx)
	if err != nil {
		exitWithError("failed to open dataset", err)
	}
	st, err := openStore()
	if err != nil {
		src.Close()
		exitWithError("failed to open index store", err)
	}

	ri, outcome, err := landuse.LoadOrBuildRegionIndex(ctx, src, st, rebuild)
	if err != nil {
		st.Close()
		src.Close()
		exitWithError("failed to load region index", err)
	}
	logger.Get().Debug("Region index ready",
		zap.Int("regions", ri.Len()),
		zap.String("persisted", outcome.String()))
	return src, st, ri
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Get().Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// startMetrics runs the system metrics collector and, when addr is set, the
// Prometheus endpoint until ctx is done
func startMetrics(ctx context.Context, reg *metrics.Registry, addr string) *metrics.Collector {
	log := logger.Named("metrics")

	collector := metrics.NewCollector(cfg.MetricsInterval, log, reg)
	go collector.Start(ctx)

	if addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, reg, log); err != nil {
				log.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}
	return collector
}

// logResources logs the last resource sample of a finished command
func logResources(collector *metrics.Collector) {
	s := collector.Last()
	if s == nil {
		return
	}
	logger.Get().Info("Resource usage",
		zap.Float64("cpu_percent", s.ProcCPUPercent),
		zap.Uint64("rss_bytes", s.ProcRSSBytes),
		zap.Float64("mem_percent", s.MemPercent))
}

func elapsed(start time.Time) zap.Field {
	return zap.Duration("duration", time.Since(start).Round(time.Millisecond))
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
