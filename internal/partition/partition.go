package partition

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quartzmem/quartz/internal/fingerprint"
)

// goldenAngleDeg is the golden angle in degrees. Successive partitions
// of a group land on a sunflower spiral, so siblings are spatially
// separated without any coordination.
const goldenAngleDeg = 137.507764

var (
	// ErrPartitionNotFound is returned by Get for an unknown id.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrNoEligiblePartition is returned by SelectOptimalSpiral when the
	// requested (contentType, depthTag) group has no partitions at all.
	// The caller must create one first.
	ErrNoEligiblePartition = errors.New("no eligible partition for group")
)

// Partition is a spatially placed bucket of entries sharing a
// (contentType, depthTag) group.
type Partition struct {
	ID          string
	ContentType string
	DepthTag    string
	Position    []float64
	Capacity    float64
	CreatedAt   time.Time

	mu   sync.Mutex
	load int
}

// Load returns the current entry count.
func (p *Partition) Load() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load
}

// AddLoad adjusts the entry count by delta. A negative result is a
// bookkeeping bug, not a recoverable condition.
func (p *Partition) AddLoad(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.load += delta
	if p.load < 0 {
		panic(fmt.Sprintf("partition %s: negative load %d", p.ID, p.load))
	}
}

// Full reports whether the partition has reached its nominal capacity.
func (p *Partition) Full() bool {
	return float64(p.Load()) >= p.Capacity
}

// Record is the persistable form of a partition. Load is not part of
// it: live load is derived from stored entries on restore, so the
// counter can never drift from the backend.
type Record struct {
	ID          string
	ContentType string
	DepthTag    string
	Position    []float64
	Capacity    float64
	CreatedAt   time.Time
}

// Record snapshots the partition for persistence.
func (p *Partition) Record() Record {
	return Record{
		ID:          p.ID,
		ContentType: p.ContentType,
		DepthTag:    p.DepthTag,
		Position:    p.Position,
		Capacity:    p.Capacity,
		CreatedAt:   p.CreatedAt,
	}
}

type groupKey struct {
	contentType string
	depthTag    string
}

// Registry creates and tracks partitions. It is owned by its caller —
// construct one per store, never shared process-wide.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Partition
	groups map[groupKey][]*Partition
	dims   int
	scale  float64

	// onCreate, when set, is called with the record of every partition
	// created after registration. Invoked outside the registry lock.
	onCreate func(Record)
}

// NewRegistry creates a Registry placing partitions in dims-dimensional
// space (minimum 3; values below that are raised to the default of 4)
// with the given spiral radius scale.
func NewRegistry(dims int, scale float64) *Registry {
	if dims < 3 {
		dims = 4
	}
	if scale <= 0 {
		scale = 1.0
	}
	return &Registry{
		byID:   make(map[string]*Partition),
		groups: make(map[groupKey][]*Partition),
		dims:   dims,
		scale:  scale,
	}
}

// Create adds the next partition for a (contentType, depthTag) group.
// The n-th partition of a group sits at the n-th point of a golden-angle
// spiral and has capacity fibonacci(n)*Phi, so groups grow outward with
// monotonically increasing nominal capacity. Partitions are never
// deleted.
func (r *Registry) Create(contentType, depthTag string) *Partition {
	r.mu.Lock()

	key := groupKey{contentType, depthTag}
	n := len(r.groups[key]) + 1

	p := &Partition{
		ID:          uuid.NewString(),
		ContentType: contentType,
		DepthTag:    depthTag,
		Position:    spiralPosition(n, r.dims, r.scale),
		Capacity:    fibonacci(n) * fingerprint.Phi,
		CreatedAt:   time.Now(),
	}

	r.byID[p.ID] = p
	r.groups[key] = append(r.groups[key], p)
	hook := r.onCreate
	r.mu.Unlock()

	if hook != nil {
		hook(p.Record())
	}
	return p
}

// SetOnCreate registers a hook called for every subsequently created
// partition, typically to persist it.
func (r *Registry) SetOnCreate(hook func(Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = hook
}

// Adopt reinstates a persisted partition. Records must be adopted in
// their original creation order so group positions and capacities line
// up with future Create calls. Load starts at zero; the engine derives
// it from stored entries.
func (r *Registry) Adopt(rec Record) *Partition {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Partition{
		ID:          rec.ID,
		ContentType: rec.ContentType,
		DepthTag:    rec.DepthTag,
		Position:    rec.Position,
		Capacity:    rec.Capacity,
		CreatedAt:   rec.CreatedAt,
	}
	r.byID[p.ID] = p
	key := groupKey{rec.ContentType, rec.DepthTag}
	r.groups[key] = append(r.groups[key], p)
	return p
}

// Get returns the partition with the given id.
func (r *Registry) Get(id string) (*Partition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, id)
	}
	return p, nil
}

// List returns the partitions of a group in creation order.
func (r *Registry) List(contentType, depthTag string) []*Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group := r.groups[groupKey{contentType, depthTag}]
	out := make([]*Partition, len(group))
	copy(out, group)
	return out
}

// Newest returns the most recently created partition of a group, or nil
// if the group is empty.
func (r *Registry) Newest(contentType, depthTag string) *Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group := r.groups[groupKey{contentType, depthTag}]
	if len(group) == 0 {
		return nil
	}
	return group[len(group)-1]
}

// All returns every partition across all groups.
func (r *Registry) All() []*Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Partition, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

// Count returns the total number of partitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// spiralPosition places the n-th partition of a group on a golden-angle
// spiral: angle n*137.5078°, radius scale*sqrt(n). The planar point is
// projected into dims dimensions by rotating the angle one axis step
// (2π/dims) per coordinate.
func spiralPosition(n, dims int, scale float64) []float64 {
	angle := float64(n) * goldenAngleDeg * math.Pi / 180
	radius := scale * math.Sqrt(float64(n))

	pos := make([]float64, dims)
	step := 2 * math.Pi / float64(dims)
	for i := range pos {
		pos[i] = radius * math.Cos(angle+float64(i)*step)
	}
	return pos
}

// fibonacci returns the n-th Fibonacci number (1-based: 1, 1, 2, 3, 5…)
// as a float64 for capacity scaling.
func fibonacci(n int) float64 {
	a, b := 1.0, 1.0
	for i := 2; i < n; i++ {
		a, b = b, a+b
	}
	if n <= 2 {
		return 1.0
	}
	return b
}
