package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deploymenttheory/go-ataraid/pkg/app"
)

var dumpRaw bool

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Inspect the raw metadata block of a device",
}

var metadataDumpCmd = &cobra.Command{
	Use:   "dump [device]",
	Short: "Decode and print the metadata block of one device",
	Long: `Locate the Promise or HighPoint metadata block of a device and print the
decoded descriptor. With --raw the block is also hex dumped, which works
even when the block does not decode.

Examples:
  ataraid metadata dump /dev/sda
  ataraid metadata dump disk1.img --raw`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMetadataDump(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
	metadataCmd.AddCommand(metadataDumpCmd)

	metadataDumpCmd.Flags().BoolVar(&dumpRaw, "raw", false, "hex dump the raw metadata block")
}

func runMetadataDump(cmd *cobra.Command, path string) error {
	ctx := newContext(cmd)
	svc, err := arrayService()
	if err != nil {
		return err
	}

	dump, dumpErr := svc.Dump(ctx, path)
	if dumpErr != nil && (!dumpRaw || dump.Raw == nil) {
		return app.WrapError(fmt.Sprintf("no metadata on %s", path), dumpErr)
	}

	w := ctx.Writer()
	switch ctx.OutputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(dump); err != nil {
			return err
		}
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(dump); err != nil {
			return err
		}
		if err := encoder.Close(); err != nil {
			return err
		}
	case "table":
		fmt.Fprintf(w, "Device:  %s (%d sectors)\n", dump.Device, dump.Sectors)
		fmt.Fprintf(w, "Format:  %s at LBA %d\n", dump.Format, dump.LBA)
		if dump.Fragment != nil {
			dumper := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
			fmt.Fprintln(w, dumper.Sdump(dump.Fragment))
		} else {
			fmt.Fprintf(w, "Decode:  %v\n", dumpErr)
		}
	default:
		return fmt.Errorf("unsupported output format: %s", ctx.OutputFormat)
	}

	if dumpRaw && dump.Raw != nil {
		fmt.Fprint(w, hex.Dump(dump.Raw))
	}
	return nil
}
