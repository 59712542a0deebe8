// Package postgis reads a land-use dataset imported into PostGIS with one
// geometry table per region, as ogr2ogr produces from a multi-layer GeoPackage.
package postgis

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/logger"
)

// Source implements dataset.Source over PostGIS geometry tables
type Source struct {
	pool       *pgxpool.Pool
	schema     string
	labelField string
}

// NewSource connects to PostgreSQL and verifies the connection
func NewSource(ctx context.Context, connString, schema, labelField string, maxConns int) (*Source, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to PostgreSQL: %v", dataset.ErrDatasetUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to reach PostgreSQL: %v", dataset.ErrDatasetUnavailable, err)
	}

	return &Source{pool: pool, schema: schema, labelField: labelField}, nil
}

// Close closes connections
func (s *Source) Close() error {
	s.pool.Close()
	return nil
}

type geometryTable struct {
	name   string
	column string
}

// Regions lists every geometry table in the schema with its extent
func (s *Source) Regions(ctx context.Context) ([]dataset.Region, error) {
	log := logger.Named("postgis")

	rows, err := s.pool.Query(ctx,
		`SELECT f_table_name, f_geometry_column FROM geometry_columns
		 WHERE f_table_schema = $1 ORDER BY f_table_name`, s.schema)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list geometry tables: %v", dataset.ErrDatasetUnavailable, err)
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (geometryTable, error) {
		var t geometryTable
		err := row.Scan(&t.name, &t.column)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read geometry tables: %v", dataset.ErrDatasetUnavailable, err)
	}

	regions := make([]dataset.Region, 0, len(tables))
	for _, t := range tables {
		var minX, minY, maxX, maxY *float64
		err := s.pool.QueryRow(ctx, extentSQL(s.schema, t)).Scan(&minX, &minY, &maxX, &maxY)
		if err != nil {
			return nil, fmt.Errorf("failed to compute extent of %s: %w", t.name, err)
		}
		if minX == nil {
			log.Debug("Skipping empty region", zap.String("region", t.name))
			continue
		}
		regions = append(regions, dataset.Region{
			ID:     t.name,
			Bounds: geom.NewBBox(*minX, *minY, *maxX, *maxY),
		})
	}

	dataset.SortRegions(regions)
	return regions, nil
}

// Features reads the bounding box and label of every row in the region's table
func (s *Source) Features(ctx context.Context, regionID string) ([]dataset.Feature, error) {
	var column string
	err := s.pool.QueryRow(ctx,
		`SELECT f_geometry_column FROM geometry_columns
		 WHERE f_table_schema = $1 AND f_table_name = $2`, s.schema, regionID).Scan(&column)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrRegionNotFound, regionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up region %s: %w", regionID, err)
	}

	rows, err := s.pool.Query(ctx, featuresSQL(s.schema, geometryTable{name: regionID, column: column}, s.labelField))
	if err != nil {
		return nil, fmt.Errorf("failed to query features of %s: %w", regionID, err)
	}
	defer rows.Close()

	var features []dataset.Feature
	for rows.Next() {
		var minX, minY, maxX, maxY float64
		var label string
		if err := rows.Scan(&minX, &minY, &maxX, &maxY, &label); err != nil {
			return nil, fmt.Errorf("failed to scan feature of %s: %w", regionID, err)
		}
		features = append(features, dataset.Feature{
			Bounds: geom.NewBBox(minX, minY, maxX, maxY),
			Label:  label,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read features of %s: %w", regionID, err)
	}
	return features, nil
}

func extentSQL(schema string, t geometryTable) string {
	return fmt.Sprintf(`
		SELECT ST_XMin(ext), ST_YMin(ext), ST_XMax(ext), ST_YMax(ext)
		FROM (SELECT ST_Extent(%s) AS ext FROM %s) s`,
		pgx.Identifier{t.column}.Sanitize(),
		pgx.Identifier{schema, t.name}.Sanitize())
}

func featuresSQL(schema string, t geometryTable, labelField string) string {
	g := pgx.Identifier{t.column}.Sanitize()
	return fmt.Sprintf(`
		SELECT ST_XMin(%s), ST_YMin(%s), ST_XMax(%s), ST_YMax(%s), COALESCE(%s::text, '')
		FROM %s
		WHERE %s IS NOT NULL`,
		g, g, g, g,
		pgx.Identifier{labelField}.Sanitize(),
		pgx.Identifier{schema, t.name}.Sanitize(),
		g)
}
