package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-ataraid/pkg/app"
	"github.com/deploymenttheory/go-ataraid/pkg/app/status"
	"github.com/deploymenttheory/go-ataraid/pkg/services"
)

var (
	createTopology   string
	createFormat     string
	createName       string
	createInterleave uint64
)

var createCmd = &cobra.Command{
	Use:   "create [device...]",
	Short: "Write fresh metadata and build a new array",
	Long: `Build a new array over the given devices. Existing metadata on the devices
is overwritten. Member order on the command line is slot order; for RAID0+1
the first half of the devices is the primary stripe set.

Topologies: raid0, raid1, raid0+1, span
Formats:    promise, highpoint

Examples:
  # Two disk mirror with Promise metadata
  ataraid create /dev/sda /dev/sdb --topology raid1

  # Four disk RAID0+1 with a 64 sector stripe and HighPoint metadata
  ataraid create /dev/sd[a-d] --topology raid0+1 --interleave 64 --format highpoint --name data`,

	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createTopology, "topology", "t", "", "array topology (raid0, raid1, raid0+1, span)")
	createCmd.Flags().StringVarP(&createFormat, "format", "f", "", "metadata format (default from config)")
	createCmd.Flags().StringVarP(&createName, "name", "n", "", "array label (HighPoint only)")
	createCmd.Flags().Uint64VarP(&createInterleave, "interleave", "i", 0, "stripe unit in sectors (default from config)")
	_ = createCmd.MarkFlagRequired("topology")
}

func runCreate(cmd *cobra.Command, devices []string) error {
	ctx := newContext(cmd)
	svc, err := arrayService()
	if err != nil {
		return err
	}

	target := app.ArrayTarget{ArrayID: -1, Devices: devices}
	if err := target.Validate(); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid member list", err)
	}

	ctx.Log(fmt.Sprintf("Creating %s array over %d devices", createTopology, len(devices)))
	id, err := svc.Create(ctx, services.CreateRequest{
		Format:     createFormat,
		Topology:   createTopology,
		Interleave: createInterleave,
		Name:       createName,
		Devices:    devices,
	})
	if err != nil {
		return app.WrapError("create failed", err)
	}

	st, err := svc.Status(id)
	if err != nil {
		return app.WrapError("create failed", err)
	}
	response := &status.Response{Arrays: []services.ArrayStatus{st}, Devices: len(devices)}
	return status.FormatOutput(ctx.Writer(), response, ctx.OutputFormat, true)
}
