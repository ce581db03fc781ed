package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lprintgolang/internal/driver"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List the built-in printer drivers",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, d := range driver.Drivers() {
			fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(driversCmd)
}
