package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wegman-software/tilefilter/internal/batch"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/landuse"
)

var probeCmd = &cobra.Command{
	Use:   "probe <minx,miny,maxx,maxy>",
	Short: "Classify a single bounding box",
	Long: `Print the candidate regions of a box, the land-use features it overlaps
in each of them, and the decision a filter run would take. Nothing is deleted.

Example:
  tilefilter probe 691478,5337490,691500,5337510`,
	Args: cobra.ExactArgs(1),
	Run:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	box, err := geom.ParseBBox(args[0])
	if err != nil {
		exitWithError("invalid bbox", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	src, st, ri := openIndex(ctx, false)
	defer src.Close()
	defer st.Close()

	labels := cfg.Labels()
	candidates := ri.Candidates(box)
	cache := landuse.NewCache(src, st, landuse.CacheOptions{
		Capacity:    max(1, len(candidates)),
		LoadTimeout: cfg.LoadTimeout,
	})
	driver := batch.NewDriver(ri, cache, labels, nil, batch.Options{DryRun: true})

	dec, err := driver.Decide(ctx, batch.Tile{ID: "probe", Box: box})
	if err != nil {
		exitWithError("failed to classify box", err)
	}

	fmt.Printf("box: %s\n", box)
	fmt.Printf("candidates: %d\n", len(candidates))
	for _, r := range candidates {
		fmt.Printf("  %s %s\n", r.ID, r.Bounds)
		fi, err := cache.Resolve(ctx, r.ID)
		if err != nil {
			fmt.Printf("    error: %v\n", err)
			continue
		}
		for _, f := range fi.Match(box) {
			mark := " "
			if labels.Contains(f.Label) {
				mark = "*"
			}
			fmt.Printf("    %s %s %s\n", mark, f.Label, f.Bounds)
		}
	}
	fmt.Printf("decision: %s (%s)", dec.Action, dec.Reason)
	if dec.Region != "" {
		fmt.Printf(" by %s", dec.Region)
	}
	fmt.Println()
}
