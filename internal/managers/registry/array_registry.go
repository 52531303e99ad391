// Package registry owns the arrays known to the process: it assembles them
// from discovered metadata fragments, creates new ones and deletes them.
package registry

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/raid"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Option configures a Registry
type Option func(*Registry)

// WithSalt separates the arrays of one controller family from another that
// may reuse the same identity tags
func WithSalt(salt string) Option {
	return func(r *Registry) {
		r.salt = salt
	}
}

// WithArrayOptions sets the engine tunables given to every array
func WithArrayOptions(opts raid.Options) Option {
	return func(r *Registry) {
		r.opts = opts
	}
}

type arrayKey struct {
	format metadata.Format
	tag    uint64
	salt   string
}

// Registry is an arena of arrays indexed by ID. IDs are never reused.
type Registry struct {
	salt string
	opts raid.Options

	mu     sync.Mutex
	arrays []*raid.Array
	index  map[arrayKey]int
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		opts:  raid.DefaultOptions(),
		index: make(map[arrayKey]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) key(format metadata.Format, tag uint64) arrayKey {
	return arrayKey{format: format, tag: tag, salt: r.salt}
}

// Merge folds a fragment read from dev into the array it describes, creating
// the array on first sight. It returns the array ID.
func (r *Registry) Merge(f *metadata.Fragment, dev interfaces.BlockDevice) (int, error) {
	if f == nil || dev == nil {
		return -1, fmt.Errorf("merge needs a fragment and a device")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := r.key(f.Format, f.Tag)
	id, ok := r.index[k]
	if !ok {
		id = len(r.arrays)
		r.arrays = append(r.arrays, raid.New(id, raid.LayoutFromFragment(f), f.Generation, r.opts))
		r.index[k] = id
		logger.Info("array found", "id", id, "format", f.Format.String(), "tag", f.Tag,
			"topology", f.Topology.String(), "generation", f.Generation)
	}

	if err := r.arrays[id].MergeFragment(f, dev); err != nil {
		return id, fmt.Errorf("merge %s into array %d: %w", dev.Name(), id, err)
	}
	logger.Debug("fragment merged", "id", id, "device", dev.Name(), "slot", f.DiskIndex,
		"generation", f.Generation, "flags", f.Flags.String())
	return id, nil
}

// Get returns the array with the given ID
func (r *Registry) Get(id int) (*raid.Array, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.arrays) || r.arrays[id] == nil {
		return nil, fmt.Errorf("%w: id %d", types.ErrNotFound, id)
	}
	return r.arrays[id], nil
}

// List returns the live arrays in ID order
func (r *Registry) List() []*raid.Array {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*raid.Array, 0, len(r.arrays))
	for _, a := range r.arrays {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Remove forgets an array without touching its members
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.arrays) || r.arrays[id] == nil {
		return fmt.Errorf("%w: id %d", types.ErrNotFound, id)
	}
	l := r.arrays[id].Layout()
	delete(r.index, r.key(l.Format, l.Tag))
	r.arrays[id] = nil
	return nil
}

// reserve allocates an ID for an array that is still being built
func (r *Registry) reserve() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arrays = append(r.arrays, nil)
	return len(r.arrays) - 1
}

// install publishes a built array under its reserved ID
func (r *Registry) install(a *raid.Array) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := a.Layout()
	k := r.key(l.Format, l.Tag)
	if _, dup := r.index[k]; dup {
		return fmt.Errorf("array tag %x already registered", l.Tag)
	}
	r.arrays[a.ID()] = a
	r.index[k] = a.ID()
	return nil
}
