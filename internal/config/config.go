// Package config holds the settings shared by all commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/wegman-software/tilefilter/internal/landuse"
	"github.com/wegman-software/tilefilter/internal/proj"
)

// Dataset source kinds
const (
	SourceGeoJSON = "geojson"
	SourcePostGIS = "postgis"
	SourceOSMPBF  = "osmpbf"
)

// Persisted-index store kinds
const (
	StoreFile   = "file"
	StorePebble = "pebble"
)

// Config holds the global configuration
type Config struct {
	// Dataset settings
	Source     string `yaml:"source"`
	DatasetDir string `yaml:"dataset_dir"` // geojson and osmpbf sources
	LabelField string `yaml:"label_field"` // empty selects the source default
	SRID       int    `yaml:"srid"`        // CRS of tile boxes; osmpbf projects into it

	// Database settings (postgis source)
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSchema   string `yaml:"db_schema"`
	DBMaxConns int    `yaml:"db_max_conns"`

	// Persisted index settings
	Store    string `yaml:"store"`
	CacheDir string `yaml:"cache_dir"`

	// Feature index cache
	CacheCapacity int           `yaml:"cache_capacity"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`

	// Classification
	UsableLabels []string `yaml:"usable_labels"`

	// Processing settings
	Workers int    `yaml:"workers"`
	TempDir string `yaml:"temp_dir"` // node index files of the osmpbf source

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	MetricsAddr     string        `yaml:"metrics_addr"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source:          SourceGeoJSON,
		DatasetDir:      "./landuse",
		SRID:            25832, // ETRS89 / UTM 32N, the ALKIS CRS
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "alkis",
		DBUser:          "postgres",
		DBSchema:        "public",
		DBMaxConns:      4,
		Store:           StoreFile,
		CacheDir:        "./landuse_cache",
		CacheCapacity:   1,
		UsableLabels:    append([]string(nil), landuse.DefaultUsableLabels...),
		Workers:         runtime.NumCPU(),
		TempDir:         os.TempDir(),
		MetricsInterval: 30 * time.Second,
	}
}

// LabelKey returns the attribute holding the land-use class
func (c *Config) LabelKey() string {
	if c.LabelField != "" {
		return c.LabelField
	}
	if c.Source == SourceOSMPBF {
		return "landuse"
	}
	return "nutzart"
}

// Labels returns the usable label set
func (c *Config) Labels() landuse.LabelSet {
	return landuse.NewLabelSet(c.UsableLabels...)
}

// StorePath returns the location of the persisted index
func (c *Config) StorePath() string {
	if c.Store == StorePebble {
		return filepath.Join(c.CacheDir, "pebble")
	}
	return c.CacheDir
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Source {
	case SourceGeoJSON, SourceOSMPBF:
		if c.DatasetDir == "" {
			return fmt.Errorf("dataset directory is required for source %s", c.Source)
		}
	case SourcePostGIS:
		if c.DBName == "" {
			return fmt.Errorf("database name is required for source %s", c.Source)
		}
	default:
		return fmt.Errorf("unknown source %q (want %s, %s or %s)", c.Source, SourceGeoJSON, SourcePostGIS, SourceOSMPBF)
	}

	if _, err := proj.NewTransformer(proj.SRID4326, c.SRID); err != nil {
		return err
	}

	if c.Store != StoreFile && c.Store != StorePebble {
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreFile, StorePebble)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache directory is required")
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1")
	}
	if c.LoadTimeout < 0 {
		return fmt.Errorf("load timeout must not be negative")
	}
	if len(c.UsableLabels) == 0 {
		return fmt.Errorf("at least one usable label is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}
