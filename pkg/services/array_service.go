package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deploymenttheory/go-ataraid/internal/config"
	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/managers/registry"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/raid"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// arrayService implements the ArrayService interface
type arrayService struct {
	cfg      *config.Config
	registry *registry.Registry
	open     DeviceOpener

	mu      sync.Mutex
	devices map[string]interfaces.BlockDevice
}

// NewArrayService creates an array service over a fresh registry. A nil
// opener opens paths as file backed devices.
func NewArrayService(cfg *config.Config, open DeviceOpener) ArrayService {
	if cfg == nil {
		cfg = config.Default()
	}
	if open == nil {
		open = func(path string) (interfaces.BlockDevice, error) {
			dev, err := device.OpenFile(path, cfg.Device)
			if err != nil {
				return nil, err
			}
			return dev, nil
		}
	}
	return &arrayService{
		cfg: cfg,
		registry: registry.New(
			registry.WithSalt(cfg.Registry.Salt),
			registry.WithArrayOptions(raid.OptionsFromConfig(cfg.RAID)),
		),
		open:    open,
		devices: make(map[string]interfaces.BlockDevice),
	}
}

// openAll opens every path concurrently, reusing devices opened before
func (s *arrayService) openAll(ctx context.Context, paths []string) ([]interfaces.BlockDevice, error) {
	devs := make([]interfaces.BlockDevice, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dev, err := s.device(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			devs[i] = dev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return devs, nil
}

func (s *arrayService) device(path string) (interfaces.BlockDevice, error) {
	s.mu.Lock()
	if dev, ok := s.devices[path]; ok {
		s.mu.Unlock()
		return dev, nil
	}
	s.mu.Unlock()

	dev, err := s.open(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.devices[path]; ok {
		_ = closeDevice(dev)
		return existing, nil
	}
	s.devices[path] = dev
	return dev, nil
}

// Discover reads metadata from the given devices and assembles arrays
func (s *arrayService) Discover(ctx context.Context, paths []string) ([]int, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no devices given")
	}
	devs, err := s.openAll(ctx, paths)
	if err != nil {
		return nil, err
	}
	ids, err := s.registry.Discover(ctx, devs)
	if err != nil {
		return nil, err
	}
	logger.Info("discovery finished", "devices", len(devs), "arrays", len(ids))
	return ids, nil
}

// Create builds a new array from the request
func (s *arrayService) Create(ctx context.Context, req CreateRequest) (int, error) {
	formatName := req.Format
	if formatName == "" {
		formatName = s.cfg.RAID.DefaultFormat
	}
	format, err := metadata.ParseFormat(formatName)
	if err != nil {
		return -1, err
	}
	topology, err := types.ParseTopology(req.Topology)
	if err != nil {
		return -1, err
	}
	interleave := req.Interleave
	if interleave == 0 {
		interleave = uint64(s.cfg.RAID.DefaultInterleave)
	}

	devs, err := s.openAll(ctx, req.Devices)
	if err != nil {
		return -1, err
	}
	a, err := s.registry.Create(ctx, registry.CreateSpec{
		Format:     format,
		Topology:   topology,
		Interleave: interleave,
		Name:       req.Name,
		Devices:    devs,
	})
	if err != nil {
		return -1, err
	}
	return a.ID(), nil
}

// Delete wipes the metadata of every member and forgets the array
func (s *arrayService) Delete(ctx context.Context, id int) error {
	return s.registry.Delete(ctx, id)
}

// Status returns a snapshot of one array
func (s *arrayService) Status(id int) (ArrayStatus, error) {
	a, err := s.registry.Get(id)
	if err != nil {
		return ArrayStatus{}, err
	}
	return a.Status(), nil
}

// List returns a snapshot of every known array
func (s *arrayService) List() []ArrayStatus {
	arrays := s.registry.List()
	out := make([]ArrayStatus, 0, len(arrays))
	for _, a := range arrays {
		out = append(out, a.Status())
	}
	return out
}

// StartRebuild starts resynchronizing a degraded array in the background
func (s *arrayService) StartRebuild(ctx context.Context, id int) error {
	a, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	_, err = a.StartRebuild(ctx)
	return err
}

// Rebuild resynchronizes a degraded array and waits for the result
func (s *arrayService) Rebuild(ctx context.Context, id int) error {
	a, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	return a.Rebuild(ctx)
}

// Dump decodes the metadata block found on a device. The raw block of the
// first format tried is returned even when nothing decodes.
func (s *arrayService) Dump(ctx context.Context, path string) (MemberDump, error) {
	if err := ctx.Err(); err != nil {
		return MemberDump{}, err
	}
	dev, err := s.device(path)
	if err != nil {
		return MemberDump{}, fmt.Errorf("open %s: %w", path, err)
	}

	dump := MemberDump{Device: dev.Name(), Sectors: dev.Sectors()}
	var errs []error
	for _, format := range metadata.Formats {
		raw, err := registry.ReadRaw(dev, format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		lba, _ := format.MetadataLBA(dev.Sectors())
		if dump.Raw == nil {
			dump.Raw, dump.LBA, dump.Format = raw, lba, format.String()
		}
		f, err := metadata.DecodeAs(format, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dump.Raw, dump.LBA, dump.Format, dump.Fragment = raw, lba, format.String(), f
		return dump, nil
	}
	return dump, errors.Join(errs...)
}

// Close releases every device the service opened
func (s *arrayService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for path, dev := range s.devices {
		if err := closeDevice(dev); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(s.devices, path)
	}
	return errors.Join(errs...)
}

func closeDevice(dev interfaces.BlockDevice) error {
	if c, ok := dev.(interfaces.ClosableBlockDevice); ok {
		return c.Close()
	}
	return nil
}
