// Package cmd holds the lprintd command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var (
	cfgFile     string
	versionInfo = VersionInfo{Version: "dev", Commit: "HEAD", BuildDate: "unknown"}
)

var rootCmd = &cobra.Command{
	Use:   "lprintd",
	Short: "Label printer application",
	Long: `lprintd exposes label and receipt printers over IPP Everywhere.

Printers are kept in a local SQLite store, advertised over DNS-SD and
driven by the built-in PWG raster drivers.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML, TOML or JSON)")
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
	rootCmd.Version = version
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
