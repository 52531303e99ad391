// Package device provides member device implementations for the RAID engine.
package device

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Transfer submits one request and waits for its completion
func Transfer(dev interfaces.BlockSubmitter, dir types.Direction, lba uint64, buf []byte) error {
	result := make(chan error, 1)
	dev.Submit(dir, lba, buf, func(n int, err error) {
		if err == nil && n != len(buf) {
			err = fmt.Errorf("short %s: %d of %d bytes", dir, n, len(buf))
		}
		result <- err
	})
	return <-result
}

func checkRange(sectors, lba uint64, buf []byte) error {
	if len(buf) == 0 || len(buf)%types.SectorSize != 0 {
		return types.ErrUnaligned
	}
	count := uint64(len(buf) / types.SectorSize)
	if lba > sectors || count > sectors-lba {
		return fmt.Errorf("lba %d+%d beyond device end %d", lba, count, sectors)
	}
	return nil
}

// statsCounter tracks device access statistics
type statsCounter struct {
	mu    sync.Mutex
	stats interfaces.BlockDeviceStats
}

func (s *statsCounter) record(dir types.Direction, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stats.Errors++
		return
	}
	if dir == types.Write {
		s.stats.Writes++
		s.stats.SectorsWritten += uint64(n / types.SectorSize)
	} else {
		s.stats.Reads++
		s.stats.SectorsRead += uint64(n / types.SectorSize)
	}
}

func (s *statsCounter) snapshot() interfaces.BlockDeviceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
