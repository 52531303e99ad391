package services

import (
	"context"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/raid"
)

// ArrayStatus is the management view of one array
type ArrayStatus = raid.Status

// MemberStatus is the management view of one member slot
type MemberStatus = raid.MemberStatus

// CreateRequest describes an array to build from member device paths
type CreateRequest struct {
	// Format is the metadata family name; empty selects the configured default
	Format string
	// Topology is one of the names accepted by types.ParseTopology
	Topology string
	// Interleave is the stripe unit in sectors; 0 selects the configured default
	Interleave uint64
	Name       string
	Devices    []string
}

// MemberDump is the decoded metadata block of one device
type MemberDump struct {
	Device   string             `json:"device" yaml:"device"`
	Sectors  uint64             `json:"sectors" yaml:"sectors"`
	Format   string             `json:"format" yaml:"format"`
	LBA      uint64             `json:"lba" yaml:"lba"`
	Fragment *metadata.Fragment `json:"fragment" yaml:"fragment"`
	Raw      []byte             `json:"-" yaml:"-"`
}

// DeviceOpener opens a member device by path
type DeviceOpener func(path string) (interfaces.BlockDevice, error)

// ArrayService provides array-level management operations
type ArrayService interface {
	// Discover reads metadata from the given devices and assembles arrays.
	// It returns the IDs of the arrays the devices belong to.
	Discover(ctx context.Context, paths []string) ([]int, error)

	// Create writes fresh metadata to the devices and registers the array
	Create(ctx context.Context, req CreateRequest) (int, error)

	// Delete wipes the metadata of every member and forgets the array
	Delete(ctx context.Context, id int) error

	// Status returns a snapshot of one array
	Status(id int) (ArrayStatus, error)

	// List returns a snapshot of every known array
	List() []ArrayStatus

	// StartRebuild starts resynchronizing a degraded array in the background
	StartRebuild(ctx context.Context, id int) error

	// Rebuild resynchronizes a degraded array and waits for the result
	Rebuild(ctx context.Context, id int) error

	// Dump decodes the metadata block found on a device
	Dump(ctx context.Context, path string) (MemberDump, error)

	// Close releases every device the service opened
	Close() error
}
