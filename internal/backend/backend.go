// Package backend defines the opsi backend port: the single interface
// through which the daemon's core reads host/product/configuration data
// and reports action progress. The backend itself — the opsi RPC service,
// its data access — is an injected external collaborator; this package
// never talks to it directly.
package backend

import (
	"context"

	"github.com/cochaviz/opsipxeconfd/internal/model"
)

// Port is the read-mostly, option-setting contract the core requires of
// the backend. Every method may fail with a transport error; callers are
// responsible for deciding whether that is fatal (startup reconciliation:
// log and skip) or surfaced to a caller (updater invoked from a control
// command: reply with an error).
type Port interface {
	ListDepotClients(ctx context.Context, depotID string) ([]model.HostID, error)
	ListNetbootActions(ctx context.Context, hostIDs []model.HostID, requested []model.BootAction) ([]model.ProductOnClient, error)
	GetHost(ctx context.Context, id model.HostID) (model.HostRecord, error)
	ListProductsOnDepot(ctx context.Context, depotID string, productIDs []string) ([]model.ProductOnDepot, error)
	GetNetbootProduct(ctx context.Context, productID, productVersion, packageVersion string) (model.NetbootProduct, error)
	GetConfigState(ctx context.Context, hostID model.HostID, configID string) ([]string, error)
	GetProductPropertyStates(ctx context.Context, hostID model.HostID, productIDs []string) ([]model.ProductPropertyState, error)
	UpdateProductOnClients(ctx context.Context, updates []model.ProductOnClient) error
	SetBackendOptions(ctx context.Context, opts model.BackendOptions) error
}
