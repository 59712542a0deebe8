package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/logger"
)

var rebuildRegions bool

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Build or load the region index and list its regions",
	Long: `Load the persisted region index, or build it from the dataset when it is
missing or unusable, and print every region with its bounds.

Examples:
  # List regions of a GeoJSON dataset
  tilefilter regions --dataset-dir ./alkis

  # Force a rebuild after the dataset changed
  tilefilter regions --rebuild`,
	Run: runRegions,
}

func init() {
	rootCmd.AddCommand(regionsCmd)
	regionsCmd.Flags().BoolVar(&rebuildRegions, "rebuild", false, "Ignore the persisted region index and rebuild it")
}

func runRegions(cmd *cobra.Command, args []string) {
	log := logger.Get()
	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	src, st, ri := openIndex(ctx, rebuildRegions)
	defer src.Close()
	defer st.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tMIN_X\tMIN_Y\tMAX_X\tMAX_Y")
	for _, r := range ri.Regions() {
		b := r.Bounds
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\n", r.ID, b.MinX, b.MinY, b.MaxX, b.MaxY)
	}
	w.Flush()

	log.Info("Region index ready", zap.Int("regions", ri.Len()), elapsed(start))
}
