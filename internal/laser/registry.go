package laser

import (
	"sync"

	"github.com/banshee-data/beyondlink/internal/monitoring"
)

// Registry maps device indices to Sources. It is the single authority for
// whether a device exists; sources are created on demand and live until the
// process exits.
type Registry struct {
	mu      sync.RWMutex
	cfg     ScannerConfig
	sources map[int]*Source
	order   []int

	// OnCreate, if set, is called (outside the registry lock) for every
	// newly created source.
	OnCreate func(*Source)
}

// NewRegistry creates an empty registry whose sources start with cfg.
func NewRegistry(cfg ScannerConfig) *Registry {
	return &Registry{
		cfg:     cfg,
		sources: make(map[int]*Source),
	}
}

// Ensure returns the source for idx, creating it if needed. created is true
// only for the call that created it.
func (r *Registry) Ensure(idx int) (src *Source, created bool) {
	r.mu.RLock()
	src, ok := r.sources[idx]
	r.mu.RUnlock()
	if ok {
		return src, false
	}

	r.mu.Lock()
	if src, ok = r.sources[idx]; ok {
		r.mu.Unlock()
		return src, false
	}
	src = NewSource(idx, r.cfg)
	r.sources[idx] = src
	r.order = append(r.order, idx)
	onCreate := r.OnCreate
	r.mu.Unlock()

	monitoring.Logf("Created laser source for device %d", idx)
	if onCreate != nil {
		onCreate(src)
	}
	return src, true
}

// Get returns the source for idx or nil if the device has not been seen.
func (r *Registry) Get(idx int) *Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[idx]
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Sources returns all sources in creation order.
func (r *Registry) Sources() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Source, 0, len(r.order))
	for _, idx := range r.order {
		out = append(out, r.sources[idx])
	}
	return out
}

// SetConfig changes the configuration of every existing source and of
// sources created later.
func (r *Registry) SetConfig(cfg ScannerConfig) {
	r.mu.Lock()
	r.cfg = cfg
	sources := make([]*Source, 0, len(r.order))
	for _, idx := range r.order {
		sources = append(sources, r.sources[idx])
	}
	r.mu.Unlock()

	for _, s := range sources {
		s.SetConfig(cfg)
	}
}

// Update runs one simulation tick over every source and returns how many
// were recomputed.
func (r *Registry) Update() int {
	updated := 0
	for _, s := range r.Sources() {
		if s.Update() {
			updated++
		}
	}
	return updated
}

// Statuses returns the status of every source in creation order.
func (r *Registry) Statuses() []Status {
	sources := r.Sources()
	out := make([]Status, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Status())
	}
	return out
}
