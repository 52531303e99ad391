package device

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-ataraid/internal/config"
	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// FileDevice exposes a disk image or block device node as an array member
type FileDevice struct {
	path       string
	file       *os.File
	fd         int
	sectors    uint64
	readOnly   bool
	syncWrites bool
	stats      *statsCounter
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// OpenFile opens path as a member device. Block device nodes report their
// size through a seek to the end, regular files through their length.
func OpenFile(path string, cfg config.DeviceConfig) (*FileDevice, error) {
	if path == "" {
		return nil, fmt.Errorf("device path cannot be empty")
	}

	flag := os.O_RDWR
	if cfg.ReadOnly {
		flag = os.O_RDONLY
	}

	file, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to size device %s: %w", path, err)
	}
	if size < types.SectorSize {
		file.Close()
		return nil, fmt.Errorf("device %s is smaller than one sector", path)
	}

	return &FileDevice{
		path:       path,
		file:       file,
		fd:         int(file.Fd()),
		sectors:    uint64(size) / types.SectorSize,
		readOnly:   cfg.ReadOnly,
		syncWrites: cfg.SyncWrites,
		stats:      &statsCounter{},
	}, nil
}

// Name returns the path the device was opened with
func (d *FileDevice) Name() string {
	return d.path
}

// Sectors returns the capacity in sectors
func (d *FileDevice) Sectors() uint64 {
	return d.sectors
}

// Submit performs the transfer on its own goroutine and reports through done
func (d *FileDevice) Submit(dir types.Direction, lba uint64, buf []byte, done interfaces.CompletionFunc) {
	if err := checkRange(d.sectors, lba, buf); err != nil {
		d.stats.record(dir, 0, err)
		done(0, err)
		return
	}
	if dir == types.Write && d.readOnly {
		err := fmt.Errorf("device %s is read-only", d.path)
		d.stats.record(dir, 0, err)
		done(0, err)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		n, err := d.transfer(dir, lba, buf)
		d.stats.record(dir, n, err)
		done(n, err)
	}()
}

func (d *FileDevice) transfer(dir types.Direction, lba uint64, buf []byte) (int, error) {
	off := int64(lba * types.SectorSize)
	total := 0
	for total < len(buf) {
		var (
			n   int
			err error
		)
		if dir == types.Write {
			n, err = unix.Pwrite(d.fd, buf[total:], off+int64(total))
		} else {
			n, err = unix.Pread(d.fd, buf[total:], off+int64(total))
		}
		if err != nil {
			return total, fmt.Errorf("%s %s at lba %d: %w", d.path, dir, lba, err)
		}
		if n == 0 {
			return total, fmt.Errorf("%s %s at lba %d: %w", d.path, dir, lba, io.ErrUnexpectedEOF)
		}
		total += n
	}

	if dir == types.Write && d.syncWrites {
		if err := unix.Fsync(d.fd); err != nil {
			return total, fmt.Errorf("%s sync: %w", d.path, err)
		}
	}
	return total, nil
}

// Stats returns a snapshot of the transfer counters
func (d *FileDevice) Stats() interfaces.BlockDeviceStats {
	return d.stats.snapshot()
}

// Close waits for in-flight transfers and closes the file
func (d *FileDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.wg.Wait()
		err = d.file.Close()
	})
	return err
}
