package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/deploymenttheory/go-ataraid/internal/types"
	"github.com/deploymenttheory/go-ataraid/pkg/services"
)

// FormatOutput writes status results in the requested output format
func FormatOutput(w io.Writer, response *Response, format string, members bool) error {
	switch format {
	case "json":
		return formatJSON(w, response)
	case "yaml":
		return formatYAML(w, response)
	case "table":
		return formatTable(w, response, members)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatTable formats results as a table
func formatTable(out io.Writer, response *Response, members bool) error {
	if len(response.Arrays) == 0 {
		fmt.Fprintln(out, "No arrays found on the scanned devices.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID\tNAME\tFORMAT\tTOPOLOGY\tDISKS\tSIZE\tSTATE\tREBUILD\n")
	fmt.Fprintf(w, "--\t----\t------\t--------\t-----\t----\t-----\t-------\n")

	for _, a := range response.Arrays {
		rebuild := "-"
		if a.Rebuilding || a.State == types.StateDegraded {
			rebuild = fmt.Sprintf("%d%%", a.Progress)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			a.ID, displayName(a), a.Format, topologyLabel(a), a.TotalDisks,
			FormatSectors(a.TotalSectors), stateLabel(a.State), rebuild)
		if members {
			for _, m := range a.Members {
				fmt.Fprintf(w, "\t  slot %d\t%s\t%s\t\t%s\t%s\t\n",
					m.Slot, deviceLabel(m), memberRole(a, m), FormatSectors(m.Sectors), m.Status)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, FormatSummary(response))
	return nil
}

// formatJSON formats results as JSON
func formatJSON(w io.Writer, response *Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// formatYAML formats results as YAML
func formatYAML(w io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}

// FormatSummary provides a one line summary of the scan
func FormatSummary(response *Response) string {
	if len(response.Arrays) == 0 {
		return fmt.Sprintf("No arrays on %d devices", response.Devices)
	}

	summary := fmt.Sprintf("Found %d array", len(response.Arrays))
	if len(response.Arrays) != 1 {
		summary += "s"
	}
	counts := response.Counts()
	var parts []string
	for _, s := range []types.ArrayState{types.StateReady, types.StateDegraded, types.StateBroken} {
		if n := counts[s.String()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(s.String())))
		}
	}
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}
	summary += fmt.Sprintf(" on %d devices in %v", response.Devices, response.ScanTime)
	return summary
}

// FormatSectors renders a sector count as a human readable size
func FormatSectors(sectors uint64) string {
	const unit = 1024
	bytes := sectors * types.SectorSize
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func stateLabel(s types.ArrayState) string {
	switch s {
	case types.StateReady:
		return color.GreenString(s.String())
	case types.StateDegraded:
		return color.YellowString(s.String())
	case types.StateBroken:
		return color.RedString(s.String())
	default:
		return s.String()
	}
}

func displayName(a services.ArrayStatus) string {
	if a.Name == "" {
		return "-"
	}
	return a.Name
}

func topologyLabel(a services.ArrayStatus) string {
	if a.Topology.Striped() {
		return fmt.Sprintf("%s/%d", a.TopologyName, a.Interleave)
	}
	return a.TopologyName
}

func deviceLabel(m services.MemberStatus) string {
	if m.Device == "" {
		return "(missing)"
	}
	return m.Device
}

func memberRole(a services.ArrayStatus, m services.MemberStatus) string {
	switch {
	case m.HotSpare:
		return "hot spare"
	case a.Topology.Mirrored() && m.Slot >= a.Width:
		return "mirror"
	default:
		return "primary"
	}
}
