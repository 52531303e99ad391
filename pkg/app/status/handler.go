package status

import (
	"fmt"
	"sort"
	"time"

	"github.com/deploymenttheory/go-ataraid/pkg/app"
	"github.com/deploymenttheory/go-ataraid/pkg/services"
)

// Handle discovers arrays on the requested devices and reports their status
func Handle(ctx *app.Context, svc services.ArrayService, req *Request) (*Response, error) {
	startTime := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx.Log(fmt.Sprintf("Scanning %d devices for array metadata", len(req.Target.Devices)))
	ctx.Progress("Reading metadata...", 10)

	scanCtx, cancel := ctx.WithTimeout(ctx.DefaultTimeout)
	defer cancel()

	ids, err := svc.Discover(scanCtx, req.Target.Devices)
	if err != nil {
		return nil, app.WrapError("discovery failed", err)
	}

	ctx.Progress("Collecting status...", 80)

	if len(ids) == 0 {
		ctx.Warn("no array metadata found on the scanned devices")
	}

	response := &Response{Devices: len(req.Target.Devices)}
	if req.Target.All() {
		for _, id := range ids {
			st, err := svc.Status(id)
			if err != nil {
				return nil, app.WrapError(fmt.Sprintf("array %d", id), err)
			}
			response.Arrays = append(response.Arrays, st)
		}
	} else {
		st, err := svc.Status(req.Target.ArrayID)
		if err != nil {
			return nil, app.WrapError(fmt.Sprintf("array %d", req.Target.ArrayID), err)
		}
		response.Arrays = append(response.Arrays, st)
	}
	sort.Slice(response.Arrays, func(i, j int) bool {
		return response.Arrays[i].ID < response.Arrays[j].ID
	})
	response.ScanTime = time.Since(startTime)

	ctx.Progress("Complete", 100)
	ctx.Log(fmt.Sprintf("Found %d arrays in %v", len(response.Arrays), response.ScanTime))

	return response, nil
}
