// Package fake provides an in-memory backend.Port implementation for
// tests, in the spirit of the disk-backed repositories the teacher
// substitutes in its own tests (internal/repositories/local), but backed
// by plain maps instead of files.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cochaviz/opsipxeconfd/internal/model"
)

// Backend is a mutable, concurrency-safe in-memory backend.Port.
type Backend struct {
	mu sync.Mutex

	depotClients     map[string][]model.HostID
	hosts            map[model.HostID]model.HostRecord
	productsOnClient map[model.HostID][]model.ProductOnClient
	productsOnDepot  map[string][]model.ProductOnDepot
	netbootProducts  map[string]model.NetbootProduct
	configStates     map[model.HostID]map[string][]string
	propertyStates   map[model.HostID][]model.ProductPropertyState

	updates []model.ProductOnClient
	options model.BackendOptions
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		depotClients:     make(map[string][]model.HostID),
		hosts:            make(map[model.HostID]model.HostRecord),
		productsOnClient: make(map[model.HostID][]model.ProductOnClient),
		productsOnDepot:  make(map[string][]model.ProductOnDepot),
		netbootProducts:  make(map[string]model.NetbootProduct),
		configStates:     make(map[model.HostID]map[string][]string),
		propertyStates:   make(map[model.HostID][]model.ProductPropertyState),
	}
}

// --- seeding helpers, used by tests ---

func (b *Backend) AddDepotClient(depotID string, id model.HostID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.depotClients[depotID] = append(b.depotClients[depotID], id)
}

func (b *Backend) SetHost(rec model.HostRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hosts[rec.HostID] = rec
}

func (b *Backend) SetProductsOnClient(id model.HostID, pocs []model.ProductOnClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.productsOnClient[id] = append([]model.ProductOnClient(nil), pocs...)
}

func (b *Backend) SetProductOnDepot(depotID string, pod model.ProductOnDepot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.productsOnDepot[depotID] = append(b.productsOnDepot[depotID], pod)
}

func (b *Backend) SetNetbootProduct(p model.NetbootProduct) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.netbootProducts[netbootKey(p.ProductID, p.ProductVersion, p.PackageVersion)] = p
}

func (b *Backend) SetConfigState(id model.HostID, configID string, values []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.configStates[id] == nil {
		b.configStates[id] = make(map[string][]string)
	}
	b.configStates[id][configID] = values
}

func (b *Backend) SetPropertyStates(id model.HostID, states []model.ProductPropertyState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.propertyStates[id] = states
}

// Updates returns every ProductOnClient update recorded via
// UpdateProductOnClients, in call order.
func (b *Backend) Updates() []model.ProductOnClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ProductOnClient(nil), b.updates...)
}

// Options returns the most recent BackendOptions set via
// SetBackendOptions.
func (b *Backend) Options() model.BackendOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.options
}

func netbootKey(productID, productVersion, packageVersion string) string {
	return fmt.Sprintf("%s|%s|%s", productID, productVersion, packageVersion)
}

// --- backend.Port ---

func (b *Backend) ListDepotClients(_ context.Context, depotID string) ([]model.HostID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]model.HostID(nil), b.depotClients[depotID]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (b *Backend) ListNetbootActions(_ context.Context, hostIDs []model.HostID, requested []model.BootAction) ([]model.ProductOnClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wanted := make(map[model.BootAction]bool, len(requested))
	for _, a := range requested {
		wanted[a] = true
	}

	var out []model.ProductOnClient
	for _, id := range hostIDs {
		for _, poc := range b.productsOnClient[id] {
			if len(wanted) == 0 || wanted[poc.ActionRequest] {
				out = append(out, poc)
			}
		}
	}
	return out, nil
}

func (b *Backend) GetHost(_ context.Context, id model.HostID) (model.HostRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.hosts[id]
	if !ok {
		return model.HostRecord{}, fmt.Errorf("host %s not found", id)
	}
	return rec, nil
}

func (b *Backend) ListProductsOnDepot(_ context.Context, depotID string, productIDs []string) ([]model.ProductOnDepot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	var out []model.ProductOnDepot
	for _, pod := range b.productsOnDepot[depotID] {
		if len(wanted) == 0 || wanted[pod.ProductID] {
			out = append(out, pod)
		}
	}
	return out, nil
}

// GetNetbootProduct returns the product seeded via SetNetbootProduct, or,
// when none was seeded for that version, a product with no
// pxeConfigTemplate override.
func (b *Backend) GetNetbootProduct(_ context.Context, productID, productVersion, packageVersion string) (model.NetbootProduct, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.netbootProducts[netbootKey(productID, productVersion, packageVersion)]
	if !ok {
		return model.NetbootProduct{ProductID: productID, ProductVersion: productVersion, PackageVersion: packageVersion}, nil
	}
	return p, nil
}

func (b *Backend) GetConfigState(_ context.Context, hostID model.HostID, configID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.configStates[hostID][configID]...), nil
}

func (b *Backend) GetProductPropertyStates(_ context.Context, hostID model.HostID, productIDs []string) ([]model.ProductPropertyState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	var out []model.ProductPropertyState
	for _, s := range b.propertyStates[hostID] {
		if len(wanted) == 0 || wanted[s.PropertyID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (b *Backend) UpdateProductOnClients(_ context.Context, updates []model.ProductOnClient) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, updates...)

	for _, u := range updates {
		pocs := b.productsOnClient[u.HostID]
		for i, poc := range pocs {
			if poc.ProductID == u.ProductID {
				pocs[i] = u
			}
		}
		b.productsOnClient[u.HostID] = pocs
	}
	return nil
}

func (b *Backend) SetBackendOptions(_ context.Context, opts model.BackendOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.options = opts
	return nil
}
