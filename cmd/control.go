package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/acquisitiond/internal/acqtypes"
	"firestige.xyz/acquisitiond/internal/command"
)

const defaultControlSocket = "/var/run/acquisitiond.sock"

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Send a control-plane command to a running acquisitiond",
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Request a pause at the next FOV boundary",
	Run: func(cmd *cobra.Command, args []string) { callSimple(cmd.Context(), "pause") },
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused timepoint",
	Run: func(cmd *cobra.Command, args []string) { callSimple(cmd.Context(), "resume") },
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort the run",
	Run: func(cmd *cobra.Command, args []string) { callSimple(cmd.Context(), "abort") },
}

var proceedCmd = &cobra.Command{
	Use:   "proceed",
	Short: "Signal the progression gate (manual/qc_gated policies)",
	Run: func(cmd *cobra.Command, args []string) { callSimple(cmd.Context(), "proceed") },
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run status",
	Run: func(cmd *cobra.Command, args []string) { callSimple(cmd.Context(), "status") },
}

var retakeRegion string
var retakeIndices []int

var retakeCmd = &cobra.Command{
	Use:   "retake",
	Short: "Request a retake pass over one region's FOV indices",
	Run: func(cmd *cobra.Command, args []string) {
		var fovs []acqtypes.FOVID
		for _, i := range retakeIndices {
			fovs = append(fovs, acqtypes.FOVID{RegionID: retakeRegion, Index: i})
		}
		client := newClient()
		resp, err := client.Retake(cmd.Context(), command.RetakeParams{FOVs: fovs})
		report(resp, err)
	},
}

func init() {
	retakeCmd.Flags().StringVar(&retakeRegion, "region", "", "region ID to retake (required)")
	retakeCmd.Flags().IntSliceVar(&retakeIndices, "index", nil, "FOV index within the region, repeatable")
	retakeCmd.MarkFlagRequired("region")
	retakeCmd.MarkFlagRequired("index")

	controlCmd.AddCommand(pauseCmd, resumeCmd, retakeCmd, abortCmd, proceedCmd, statusCmd)
}

func newClient() *command.UDSClient {
	socket := socketPath
	if socket == "" {
		socket = defaultControlSocket
	}
	return command.NewUDSClient(socket, 10*time.Second)
}

func callSimple(ctx context.Context, method string) {
	client := newClient()
	resp, err := client.Call(ctx, method, nil)
	report(resp, err)
}

func report(resp *command.Response, err error) {
	if err != nil {
		exitWithError("control command failed", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("%s", resp.Error.Message), nil)
	}
	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(out))
}
