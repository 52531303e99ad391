package status

import (
	"time"

	"github.com/deploymenttheory/go-ataraid/pkg/app"
	"github.com/deploymenttheory/go-ataraid/pkg/services"
)

// Request represents an array status request
type Request struct {
	Target app.ArrayTarget

	// ShowMembers lists every member slot under its array in table output
	ShowMembers bool
}

// Response represents the arrays found on the scanned devices
type Response struct {
	Arrays   []services.ArrayStatus `json:"arrays" yaml:"arrays"`
	Devices  int                    `json:"devices_scanned" yaml:"devices_scanned"`
	ScanTime time.Duration          `json:"scan_time" yaml:"scan_time"`
}

// Counts tallies arrays by state name
func (r *Response) Counts() map[string]int {
	counts := make(map[string]int)
	for _, a := range r.Arrays {
		counts[a.StateName]++
	}
	return counts
}
