package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-ataraid/pkg/app"
	"github.com/deploymenttheory/go-ataraid/pkg/services"
)

var (
	rebuildArrayID  int
	rebuildInterval time.Duration
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [device...]",
	Short: "Resynchronize the spare of a degraded mirror",
	Long: `Discover arrays on the given devices and copy the surviving leg of the
selected array onto its spare. Progress is checkpointed in the metadata, so
an interrupted rebuild resumes where it stopped on the next run.

Examples:
  # Replace a failed mirror leg with the device at /dev/sdc
  ataraid rebuild /dev/sda /dev/sdc --array 0`,

	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRebuild(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().IntVarP(&rebuildArrayID, "array", "a", -1, "array ID to rebuild")
	rebuildCmd.Flags().DurationVar(&rebuildInterval, "interval", time.Second, "progress report interval")
	_ = rebuildCmd.MarkFlagRequired("array")
}

func runRebuild(cmd *cobra.Command, devices []string) error {
	ctx := newContext(cmd)
	svc, err := arrayService()
	if err != nil {
		return err
	}

	target := app.ArrayTarget{ArrayID: rebuildArrayID, Devices: devices}
	if err := target.Validate(); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid array target", err)
	}
	if target.All() {
		return app.NewError(app.ErrCodeInvalidInput, "an array ID is required", nil)
	}
	if _, err := svc.Discover(ctx, devices); err != nil {
		return app.WrapError("discovery failed", err)
	}
	if _, err := svc.Status(target.ArrayID); err != nil {
		return app.WrapError(target.String(), err)
	}

	if !ctx.Quiet {
		ctx.SetProgress(func(message string, percent int) {
			fmt.Fprintf(ctx.ErrOut, "\r%s %3d%%", message, percent)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.Rebuild(ctx, target.ArrayID)
	}()

	err = watchRebuild(ctx, svc, target.ArrayID, rebuildInterval, done)
	if !ctx.Quiet {
		fmt.Fprintln(ctx.ErrOut)
	}
	if err != nil {
		return app.WrapError("rebuild failed", err)
	}

	st, err := svc.Status(target.ArrayID)
	if err != nil {
		return app.WrapError(target.String(), err)
	}
	if !ctx.Quiet {
		fmt.Fprintf(ctx.Writer(), "Array %d is %s\n", st.ID, st.StateName)
	}
	return nil
}

// watchRebuild reports progress until the rebuild returns
func watchRebuild(ctx *app.Context, svc services.ArrayService, id int, interval time.Duration, done <-chan error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	update := app.ProgressUpdate{Message: "Rebuilding", Total: 100, StartedAt: time.Now()}
	for {
		select {
		case err := <-done:
			if err == nil {
				ctx.Progress(update.Message, 100)
			}
			return err
		case <-ticker.C:
			st, err := svc.Status(id)
			if err != nil {
				continue
			}
			update.Completed = int64(st.Progress)
			update.ElapsedTime = time.Since(update.StartedAt)
			ctx.Progress(update.Message, update.Percent())
			if eta := update.ETA(); eta > 0 {
				ctx.Log(fmt.Sprintf("rebuild of array %d: %d%%, about %v left", id, update.Percent(), eta))
			}
		}
	}
}
