package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lprintgolang/internal/client"
	"lprintgolang/internal/system"
)

var (
	statusServer string
	statusUser   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the printers of a running server",
	Long: `Query a running lprintd over IPP and list its printers.

Examples:
  lprintd status
  lprintd status --server ipp://printhost:8631`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusServer, "server", "localhost:631", "server address, host:port or URL")
	statusCmd.Flags().StringVar(&statusUser, "user", "", "requesting user name")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	c := client.New(client.WithServer(statusServer), client.WithUser(statusUser))
	printers, err := c.Printers(ctx)
	if err != nil {
		return fmt.Errorf("query %s: %w", statusServer, err)
	}
	if len(printers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no printers")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tJOBS\tREASONS")
	for _, p := range printers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", p.ID, p.Name, stateName(p.State), p.QueuedJobs, strings.Join(p.Reasons, ","))
	}
	return tw.Flush()
}

func stateName(state int) string {
	if name := system.PrinterState(state).String(); name != "unknown" {
		return name
	}
	return fmt.Sprintf("state-%d", state)
}
