// Package registry tracks the active PXE writers: one WriterEntry per
// host currently owning a FIFO. Mutation is serialised by a single
// mutex, following the mutex-guarded-map-with-snapshot shape used
// throughout the rest of the pack for small, short-lived concurrent
// sets.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/cochaviz/opsipxeconfd/internal/model"
)

// Registry is a concurrency-safe set of active WriterEntry values, keyed
// by host identity, with a secondary index by pxefile path.
type Registry struct {
	mu      sync.Mutex
	byHost  map[model.HostID]*model.WriterEntry
	byFile  map[string]*model.WriterEntry
	hostMus map[model.HostID]*sync.Mutex
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byHost:  make(map[model.HostID]*model.WriterEntry),
		byFile:  make(map[string]*model.WriterEntry),
		hostMus: make(map[model.HostID]*sync.Mutex),
	}
}

// Insert adds entry, indexed by its HostID and PxeFile. It is the
// caller's responsibility to have evicted any prior entry for the same
// host first; Insert overwrites the host index unconditionally but
// leaves any stale pxefile index entry in place if the paths differ.
func (r *Registry) Insert(entry *model.WriterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHost[entry.HostID] = entry
	r.byFile[entry.PxeFile] = entry
}

// Remove deletes entry from both indexes, but only if the currently
// indexed entry for its host is still the same one (so a late Remove
// from an evicted writer cannot clobber its successor).
func (r *Registry) Remove(entry *model.WriterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byHost[entry.HostID]; ok && cur == entry {
		delete(r.byHost, entry.HostID)
	}
	if cur, ok := r.byFile[entry.PxeFile]; ok && cur == entry {
		delete(r.byFile, entry.PxeFile)
	}
}

// LookupHost returns the active entry for a host, if any.
func (r *Registry) LookupHost(id model.HostID) (*model.WriterEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byHost[id]
	return e, ok
}

// LookupFile returns the active entry owning pxefile, if any.
func (r *Registry) LookupFile(pxefile string) (*model.WriterEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byFile[pxefile]
	return e, ok
}

// List returns a stable snapshot of every active entry, taken under the
// registry lock. The snapshot may be stale the moment it is returned;
// callers (the control server's "status" command) accept that.
func (r *Registry) List() []*model.WriterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.WriterEntry, 0, len(r.byHost))
	for _, e := range r.byHost {
		out = append(out, e)
	}
	return out
}

// Len reports the number of active entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHost)
}

// WithHostSlot serialises access to a single host's slot: concurrent
// update requests for the same host block on each other here, while
// requests for different hosts proceed independently. fn runs holding
// the slot; the slot is released when fn returns.
func (r *Registry) WithHostSlot(hostID model.HostID, fn func()) {
	hostMu := r.hostMutex(hostID)
	hostMu.Lock()
	defer hostMu.Unlock()
	fn()
}

func (r *Registry) hostMutex(hostID model.HostID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.hostMus[hostID]
	if !ok {
		m = &sync.Mutex{}
		r.hostMus[hostID] = m
	}
	return m
}

// EvictHost cancels and awaits the writer currently registered for
// host, if any, removing it from the registry. It must be called while
// holding the host's slot.
func (r *Registry) EvictHost(ctx context.Context, hostID model.HostID) error {
	entry, ok := r.LookupHost(hostID)
	if !ok {
		return nil
	}

	entry.Cancel()
	select {
	case <-entry.Done:
	case <-ctx.Done():
		return fmt.Errorf("evict %s: %w", hostID, ctx.Err())
	}

	r.Remove(entry)
	return nil
}

// CancelAndAwaitAll cancels every active writer and waits for all of
// them to finish tearing down, used by the supervisor's shutdown path.
func (r *Registry) CancelAndAwaitAll(ctx context.Context) {
	entries := r.List()
	for _, e := range entries {
		e.Cancel()
	}
	for _, e := range entries {
		select {
		case <-e.Done:
		case <-ctx.Done():
			return
		}
		r.Remove(e)
	}
}
