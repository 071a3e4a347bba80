// Command slimaps generates parameter maps from scattered light imaging
// measurements.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "slimaps",
		Short: "Parallel feature map generation for scattered light imaging",
		Long: `slimaps reads a stack of scattered light imaging measurements, one image per
rotation angle, and writes per-pixel parameter maps such as the number of
peaks, peak width, peak distance and the in-plane fiber directions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newFeaturesCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatalf("slimaps: %v", err)
	}
}
