package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-ataraid/pkg/app"
	"github.com/deploymenttheory/go-ataraid/pkg/app/status"
)

var (
	statusArrayID int
	statusMembers bool
)

var statusCmd = &cobra.Command{
	Use:     "status [device...]",
	Aliases: []string{"discover", "scan"},
	Short:   "Discover arrays on devices and report their health",
	Long: `Read the Promise and HighPoint metadata blocks of the given devices, assemble
the arrays they describe and report each array's topology, size and state.

Examples:
  # Report every array found on two disks
  ataraid status /dev/sda /dev/sdb

  # Show one array with its member slots
  ataraid status /dev/sd[a-d] --array 1 --members

  # Machine readable output
  ataraid status disk0.img disk1.img -o json`,

	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVarP(&statusArrayID, "array", "a", -1, "report only this array ID")
	statusCmd.Flags().BoolVarP(&statusMembers, "members", "m", false, "list member slots in table output")
}

func runStatus(cmd *cobra.Command, devices []string) error {
	ctx := newContext(cmd)
	svc, err := arrayService()
	if err != nil {
		return err
	}

	request := &status.Request{
		Target: app.ArrayTarget{
			ArrayID: statusArrayID,
			Devices: devices,
		},
		ShowMembers: statusMembers,
	}

	response, err := status.Handle(ctx, svc, request)
	if err != nil {
		return err
	}
	return status.FormatOutput(ctx.Writer(), response, ctx.OutputFormat, request.ShowMembers)
}
