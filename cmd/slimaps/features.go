package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slimaps/pkg/features"
)

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the selectable features in column order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for f := features.Feature(0); f < features.Count; f++ {
				if f.Width() > 1 {
					fmt.Fprintf(out, "%-24s %d columns\n", f, f.Width())
					continue
				}
				fmt.Fprintln(out, f)
			}
			return nil
		},
	}
}
