package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wegman-software/tilefilter/internal/fetch"
)

var (
	fetchDir  string
	fetchList bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <source>",
	Short: "Download a land-use dataset",
	Long: `Download a dataset file into --dir unless it is already present.

Sources:
  - alkis-bayern (Nutzung_kreis.gpkg, about 5 GB; load it into PostGIS
    with ogr2ogr and use --source postgis)
  - geofabrik/<region> (OSM PBF extract for --source osmpbf)
  - a URL of any file, e.g. a <region>.geojson for --source geojson

Examples:
  tilefilter fetch alkis-bayern --dir ./alkis
  tilefilter fetch geofabrik/oberbayern --dir ./pbf
  tilefilter fetch --list`,
	Args: func(cmd *cobra.Command, args []string) error {
		if fetchList {
			return nil
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	Run: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "Download directory (default --dataset-dir)")
	fetchCmd.Flags().BoolVar(&fetchList, "list", false, "List predefined sources")
}

func runFetch(cmd *cobra.Command, args []string) {
	if fetchList {
		for _, s := range fetch.ListSources() {
			fmt.Println(s)
		}
		return
	}

	src, err := fetch.ParseSource(args[0])
	if err != nil {
		exitWithError("invalid source", err)
	}

	dir := fetchDir
	if dir == "" {
		dir = cfg.DatasetDir
	}

	ctx, cancel := signalContext()
	defer cancel()

	path, err := fetch.NewFetcher(dir).Fetch(ctx, src)
	if err != nil {
		exitWithError("download failed", err)
	}
	fmt.Println(path)
	if src.Hint != "" {
		fmt.Println(src.Hint)
	}
}
