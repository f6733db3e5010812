// Package cmd implements the acquisitiond CLI using the cobra framework,
// grounded on the teacher's cmd/root.go persistent-flags-plus-subcommand
// layout.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:   "acquisitiond",
	Short: "Acquisition daemon for multi-timepoint, multi-FOV microscope runs",
	Long: `acquisitiond drives a fixed plan of regions and fields of view across a
run's timepoints, coordinating pause/resume/retake control, background
save and QC jobs, and QC-policy-driven pausing.`,
	Version: "0.1.0",
}

// Execute runs rootCmd; its subcommands are registered in init. Called
// once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/acquisitiond/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "",
		"control-plane socket path (overrides the value in config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(controlCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
