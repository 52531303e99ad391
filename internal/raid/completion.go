package raid

import (
	"sync"
	"sync/atomic"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Request tracks one logical transfer submitted to an array
type Request struct {
	Dir     types.Direction
	LBA     uint64
	Sectors uint64

	pending atomic.Int32
	once    sync.Once
	mu      sync.Mutex
	err     error
	done    chan struct{}
	release func()
}

func newRequest(dir types.Direction, lba, sectors uint64) *Request {
	return &Request{Dir: dir, LBA: lba, Sectors: sectors, done: make(chan struct{})}
}

// Done is closed once every chunk of the request has completed
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completes and returns its outcome
func (r *Request) Wait() error {
	<-r.done
	return r.Err()
}

// Err returns the first chunk failure, nil while running or on success
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Request) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

// chunkDone retires one chunk and completes the request after the last
func (r *Request) chunkDone() {
	if r.pending.Add(-1) == 0 {
		r.finish()
	}
}

func (r *Request) finish() {
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
		close(r.done)
	})
}

// splitRequest is one member transfer derived from a Request
type splitRequest struct {
	req   *Request
	chunk Chunk
	slot  int
	dev   interfaces.BlockDevice
	lba   uint64
	buf   []byte
	join  *legJoin
}

// legJoin joins the legs a chunk was written to. Legs hold a pointer to the
// shared counter instead of to each other.
type legJoin struct {
	remaining atomic.Int32
	succeeded atomic.Int32
	mu        sync.Mutex
	err       error
}

func newLegJoin(legs int) *legJoin {
	j := &legJoin{}
	j.remaining.Store(int32(legs))
	return j
}

// complete records one leg outcome and reports whether it was the last leg
// along with the chunk error: nil if any leg succeeded
func (j *legJoin) complete(err error) (bool, error) {
	if err != nil {
		j.mu.Lock()
		j.err = err
		j.mu.Unlock()
	} else {
		j.succeeded.Add(1)
	}
	if j.remaining.Add(-1) != 0 {
		return false, nil
	}
	if j.succeeded.Load() > 0 {
		return true, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return true, j.err
}
