package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// ReadRaw returns the raw metadata block of the given family from dev
func ReadRaw(dev interfaces.BlockDevice, format metadata.Format) ([]byte, error) {
	lba, err := format.MetadataLBA(dev.Sectors())
	if err != nil {
		return nil, err
	}
	buf := make([]byte, format.BlockSize())
	if err := device.Transfer(dev, types.Read, lba, buf); err != nil {
		return nil, fmt.Errorf("read %s metadata at lba %d: %w", format, lba, err)
	}
	return buf, nil
}

// ReadFragment reads and decodes the metadata block of the given family
func ReadFragment(dev interfaces.BlockDevice, format metadata.Format) (*metadata.Fragment, error) {
	raw, err := ReadRaw(dev, format)
	if err != nil {
		return nil, err
	}
	return metadata.DecodeAs(format, raw)
}

// Probe looks for any supported descriptor on dev
func Probe(dev interfaces.BlockDevice) (*metadata.Fragment, error) {
	var errs []error
	for _, format := range metadata.Formats {
		f, err := ReadFragment(dev, format)
		if err == nil {
			return f, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

type probeResult struct {
	dev      interfaces.BlockDevice
	fragment *metadata.Fragment
}

// Discover reads the metadata of every device concurrently and merges what it
// finds. Devices without a valid descriptor are skipped. It returns the IDs of
// the arrays the devices belong to.
func (r *Registry) Discover(ctx context.Context, devs []interfaces.BlockDevice) ([]int, error) {
	results := make([]probeResult, len(devs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(metadata.Formats) * 4)
	for i, dev := range devs {
		i, dev := i, dev
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := Probe(dev)
			if err != nil {
				var codecErr *types.CodecError
				if errors.As(err, &codecErr) {
					logger.Debug("no array metadata", "device", dev.Name(), "error", err)
				} else {
					logger.Warn("metadata probe failed", "device", dev.Name(), "error", err)
				}
				return nil
			}
			results[i] = probeResult{dev: dev, fragment: f}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var ids []int
	for _, res := range results {
		if res.fragment == nil {
			continue
		}
		id, err := r.Merge(res.fragment, res.dev)
		if err != nil {
			logger.Warn("fragment rejected", "device", res.dev.Name(), "error", err)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
