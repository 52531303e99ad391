package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-ataraid/internal/config"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/pkg/app"
	"github.com/deploymenttheory/go-ataraid/pkg/services"
)

var (
	// Global output flags
	verbose      bool
	quiet        bool
	noColor      bool
	outputFormat string
	configPath   string

	// Built once per invocation by the root pre-run hook
	cfg     *config.Config
	factory *services.ServiceFactory
)

var rootCmd = &cobra.Command{
	Use:   "ataraid",
	Short: "Promise and HighPoint ATA software RAID tool",
	Long: `ataraid assembles, inspects, creates and repairs ATA software RAID arrays
described by Promise FastTrak and HighPoint HPT37x on-disk metadata.

Member devices are raw disks, partitions or plain image files. Arrays are
discovered from the metadata on the devices named on the command line.

Commands:
  status      Discover arrays on devices and report their health
  create      Write fresh metadata and build a new array
  delete      Wipe the metadata of every member of an array
  rebuild     Resynchronize the spare of a degraded mirror
  metadata    Inspect the raw metadata block of a device
  config      Show the effective configuration`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		mode := cfg.Log.Mode
		if verbose {
			mode = "dev"
		}
		logger.SetType(mode)

		if noColor {
			color.NoColor = true
		}
		factory = services.NewServiceFactory(cfg)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		logger.Sync()
		if factory == nil {
			return nil
		}
		return factory.Shutdown()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if factory != nil {
			_ = factory.Shutdown()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code := app.ErrorCode(err); code != app.ErrCodeInternal && verbose {
			fmt.Fprintf(os.Stderr, "Code: %s\n", code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./ataraid-config.yaml)")
}

// newContext builds the application context for one command run
func newContext(cmd *cobra.Command) *app.Context {
	ctx := app.NewContext()
	ctx.Context = cmd.Context()
	ctx.Config = cfg
	ctx.OutputFormat = GetOutputFormat()
	ctx.Verbose = GetVerbose()
	ctx.Quiet = GetQuiet()
	ctx.NoColor = noColor
	ctx.Out = cmd.OutOrStdout()
	ctx.ErrOut = cmd.ErrOrStderr()
	return ctx
}

// arrayService returns the service shared by every command of this run
func arrayService() (services.ArrayService, error) {
	if factory == nil {
		return nil, fmt.Errorf("services are not initialized")
	}
	return factory.ArrayService()
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quiet
}

// GetOutputFormat returns the output format
func GetOutputFormat() string {
	return outputFormat
}
