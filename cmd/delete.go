package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-ataraid/pkg/app"
)

var deleteArrayID int

var deleteCmd = &cobra.Command{
	Use:   "delete [device...]",
	Short: "Wipe the metadata of every member of an array",
	Long: `Discover arrays on the given devices and erase the metadata block of every
member of the selected array. Member data is left in place.

Examples:
  ataraid delete /dev/sda /dev/sdb --array 0`,

	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDelete(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().IntVarP(&deleteArrayID, "array", "a", -1, "array ID to delete")
	_ = deleteCmd.MarkFlagRequired("array")
}

func runDelete(cmd *cobra.Command, devices []string) error {
	ctx := newContext(cmd)
	svc, err := arrayService()
	if err != nil {
		return err
	}

	target := app.ArrayTarget{ArrayID: deleteArrayID, Devices: devices}
	if err := target.Validate(); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid array target", err)
	}
	if target.All() {
		return app.NewError(app.ErrCodeInvalidInput, "an array ID is required", nil)
	}

	if _, err := svc.Discover(ctx, devices); err != nil {
		return app.WrapError("discovery failed", err)
	}
	st, err := svc.Status(target.ArrayID)
	if err != nil {
		return app.WrapError(target.String(), err)
	}
	if err := svc.Delete(ctx, target.ArrayID); err != nil {
		return app.WrapError("delete failed", err)
	}

	if !ctx.Quiet {
		fmt.Fprintf(ctx.Writer(), "Deleted %s %s array %d (%d members)\n", st.Format, st.TopologyName, st.ID, st.TotalDisks)
	}
	return nil
}
