// Package updater implements the boot-config updater: given a hostId it
// resolves everything a PXE writer needs — template, pxefile path,
// append bag, property map — evicts any writer already owned by that
// host, and starts a fresh one. It is the one package that ties the
// backend port, the renderer, the registry and the writer together.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cochaviz/opsipxeconfd/internal/backend"
	"github.com/cochaviz/opsipxeconfd/internal/logging"
	"github.com/cochaviz/opsipxeconfd/internal/model"
	"github.com/cochaviz/opsipxeconfd/internal/pxewriter"
	"github.com/cochaviz/opsipxeconfd/internal/registry"
)

// ErrAddressCollision is returned when a pxefile is already owned by an
// active writer for a different host.
var ErrAddressCollision = errors.New("address collision")

// pendingActions is the set of ProductOnClient action requests that
// require a PXE boot configuration to be materialised.
var pendingActions = model.PendingBootActions

// obsoleteTemplateNames are legacy pxeConfigTemplate values that no
// longer name a real template; they are treated as unset and fall back
// to the configured default, with a logged warning.
var obsoleteTemplateNames = map[string]bool{
	"install-x64": true,
	"install3264": true,
}

// Updater resolves and (re)materialises one host's boot configuration.
// Backend, PxeDir and DefaultTemplate are reloadable via Reconfigure, so
// access to them is guarded by mu rather than exposed as bare fields —
// Update and a concurrent SIGHUP-triggered Reconfigure would otherwise
// race on ordinary struct fields.
type Updater struct {
	Registry *registry.Registry
	DepotID  string
	Logger   *slog.Logger

	mu              sync.RWMutex
	backend         backend.Port
	pxeDir          string
	defaultTemplate string
}

// New returns an Updater wired to backend, registry, the depot this
// daemon instance serves, the directory FIFOs are created in, and the
// path of the configured default template.
func New(be backend.Port, reg *registry.Registry, depotID, pxeDir, defaultTemplate string, logger *slog.Logger) *Updater {
	return &Updater{
		Registry:        reg,
		DepotID:         depotID,
		Logger:          logging.Ensure(logger).With("component", "updater"),
		backend:         be,
		pxeDir:          pxeDir,
		defaultTemplate: defaultTemplate,
	}
}

// Reconfigure atomically swaps the backend, FIFO directory and default
// template an Updater resolves against, for a supervisor reload. Any
// Update call already past this point reads a consistent snapshot taken
// at its own start; a call starting after Reconfigure returns sees the
// new values.
func (u *Updater) Reconfigure(be backend.Port, pxeDir, defaultTemplate string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.backend = be
	u.pxeDir = pxeDir
	u.defaultTemplate = defaultTemplate
}

// snapshot returns the backend/pxeDir/defaultTemplate triple in effect
// at the moment of the call, so a single Update call observes one
// consistent configuration even if a reload races it.
func (u *Updater) snapshot() (backend.Port, string, string) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.backend, u.pxeDir, u.defaultTemplate
}

// Update runs the full update(hostId) sequence under the host's slot and
// returns the reply string sent back to the control client, or an error
// for callers to turn into an "(ERROR): <message>" reply.
func (u *Updater) Update(ctx context.Context, rawHostID string, cacheTemplatePath string) (result string, err error) {
	hostID, cerr := model.CanonicalizeHostID(rawHostID)
	if cerr != nil {
		return "", fmt.Errorf("canonicalise host id %q: %w", rawHostID, cerr)
	}

	u.Registry.WithHostSlot(hostID, func() {
		result, err = u.updateLocked(ctx, hostID, cacheTemplatePath)
	})
	return result, err
}

func (u *Updater) updateLocked(ctx context.Context, hostID model.HostID, cacheTemplatePath string) (string, error) {
	be, pxeDir, defaultTemplate := u.snapshot()

	if err := u.Registry.EvictHost(ctx, hostID); err != nil {
		return "", fmt.Errorf("evict existing writer for %s: %w", hostID, err)
	}

	pocs, err := be.ListNetbootActions(ctx, []model.HostID{hostID}, pendingActions)
	if err != nil {
		return "", fmt.Errorf("list netboot actions for %s: %w", hostID, err)
	}
	if len(pocs) == 0 {
		return "Boot configuration updated", nil
	}

	productIDs := make([]string, 0, len(pocs))
	for _, p := range pocs {
		productIDs = append(productIDs, p.ProductID)
	}
	depotsByProduct, err := be.ListProductsOnDepot(ctx, u.DepotID, productIDs)
	if err != nil {
		return "", fmt.Errorf("list products on depot for %s: %w", hostID, err)
	}
	depotVersions := make(map[string]model.ProductOnDepot, len(depotsByProduct))
	for _, d := range depotsByProduct {
		depotVersions[d.ProductID] = d
	}

	survivors := make([]model.ProductOnClient, 0, len(pocs))
	for _, p := range pocs {
		dep, ok := depotVersions[p.ProductID]
		if !ok {
			continue
		}
		p.ProductVersion = dep.ProductVersion
		p.PackageVersion = dep.PackageVersion
		survivors = append(survivors, p)
	}
	if len(survivors) == 0 {
		return "Boot configuration updated", nil
	}

	templatePath, isDefault, err := u.resolveTemplate(ctx, be, defaultTemplate, hostID, survivors, cacheTemplatePath)
	if err != nil {
		return "", err
	}

	host, err := be.GetHost(ctx, hostID)
	if err != nil {
		return "", fmt.Errorf("get host %s: %w", hostID, err)
	}

	basename, err := model.PxeConfigName(host)
	if err != nil {
		return "", fmt.Errorf("resolve pxefile for %s: %w", hostID, err)
	}
	pxefile := filepath.Join(pxeDir, basename)

	if existing, ok := u.Registry.LookupFile(pxefile); ok {
		if existing.HostID == hostID {
			u.Logger.Info("pxefile already exists for this host", "hostId", hostID, "pxefile", pxefile)
			return "Boot configuration updated", nil
		}
		return "", fmt.Errorf("%w: pxefile %s already owned by %s", ErrAddressCollision, pxefile, existing.HostID)
	}

	bag, err := u.composeAppendBag(ctx, be, hostID, host, survivors)
	if err != nil {
		return "", err
	}

	props, err := u.buildPropertyMap(ctx, be, hostID, productIDs)
	if err != nil {
		return "", err
	}

	if err := u.startWriter(be, pxefile, templatePath, isDefault, props, bag, hostID, survivors); err != nil {
		return "", err
	}
	return "Boot configuration updated", nil
}

// resolveTemplate implements step 5: pick the pxeConfigTemplate shared by
// the survivors, falling back to the default, and resolving relative
// paths against the default template's directory.
func (u *Updater) resolveTemplate(ctx context.Context, be backend.Port, defaultTemplate string, hostID model.HostID, survivors []model.ProductOnClient, cacheTemplatePath string) (path string, isDefault bool, err error) {
	if cacheTemplatePath != "" {
		return cacheTemplatePath, false, nil
	}

	var chosen string
	for _, p := range survivors {
		product, err := be.GetNetbootProduct(ctx, p.ProductID, p.ProductVersion, p.PackageVersion)
		if err != nil {
			return "", false, fmt.Errorf("get netboot product %s: %w", p.ProductID, err)
		}

		tmpl := strings.TrimSpace(product.PxeConfigTemplate)
		if obsoleteTemplateNames[tmpl] {
			u.Logger.Warn("ignoring obsolete pxeConfigTemplate value", "hostId", hostID, "productId", p.ProductID, "pxeConfigTemplate", tmpl)
			tmpl = ""
		}
		if tmpl == "" {
			continue
		}
		if chosen != "" && chosen != tmpl {
			u.Logger.Error("conflicting pxeConfigTemplate values for host, keeping last seen", "hostId", hostID, "discarded", chosen, "kept", tmpl)
		}
		chosen = tmpl
	}

	if chosen == "" {
		return defaultTemplate, true, nil
	}
	if !filepath.IsAbs(chosen) {
		chosen = filepath.Join(filepath.Dir(defaultTemplate), chosen)
	}
	return chosen, false, nil
}

// composeAppendBag implements step 8.
func (u *Updater) composeAppendBag(ctx context.Context, be backend.Port, hostID model.HostID, host model.HostRecord, survivors []model.ProductOnClient) (*model.AppendBag, error) {
	bag := model.NewAppendBag()
	bag.SetSecret("pckey", host.HostKey.Reveal())
	bag.Set("hn", hostID.ShortName())
	bag.Set("dn", hostID.Domain())
	if len(survivors) > 0 {
		bag.Set("product", survivors[0].ProductID)
	}

	serviceURLs, err := be.GetConfigState(ctx, hostID, model.ConfigServiceURL)
	if err != nil {
		return nil, fmt.Errorf("get config service url for %s: %w", hostID, err)
	}
	bag.Set("service", withRPCSuffix(firstOrEmpty(serviceURLs)))

	appendValues, err := be.GetConfigState(ctx, hostID, model.AppendConfigState)
	if err != nil {
		return nil, fmt.Errorf("get append config state for %s: %w", hostID, err)
	}
	bag.MergeOver(model.TokenizeAppend(strings.Join(appendValues, " ")))

	return bag, nil
}

func (u *Updater) buildPropertyMap(ctx context.Context, be backend.Port, hostID model.HostID, productIDs []string) (model.PropertyMap, error) {
	states, err := be.GetProductPropertyStates(ctx, hostID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get product property states for %s: %w", hostID, err)
	}
	return model.NewPropertyMap(states), nil
}

func (u *Updater) startWriter(be backend.Port, pxefile, templatePath string, isDefault bool, props model.PropertyMap, bag *model.AppendBag, hostID model.HostID, pocs []model.ProductOnClient) error {
	entry := &model.WriterEntry{
		HostID:            hostID,
		PxeFile:           pxefile,
		TemplatePath:      templatePath,
		IsDefaultTemplate: isDefault,
		Append:            bag,
		ProductsOnClient:  pocs,
		StartTime:         time.Now(),
	}

	w, err := pxewriter.New(pxefile, templatePath, props, bag, hostID.ShortName(), func(res pxewriter.Result) {
		u.onWriterComplete(be, entry, res)
	})
	if err != nil {
		u.Logger.Error("failed to construct pxe writer", "hostId", hostID, "error", err)
		return fmt.Errorf("start pxe writer for %s: %w", hostID, err)
	}

	w.Start(entry)
	u.Registry.Insert(entry)
	return nil
}

// onWriterComplete implements the completion callback post-conditions of
// §4.C: remove the entry, flush actionProgress (and actionRequest for a
// non-default template), and re-enter the updater for any host whose
// pending action was "always". be is the backend this writer was
// started against, kept stable across a concurrent reload rather than
// re-read from the Updater.
func (u *Updater) onWriterComplete(be backend.Port, entry *model.WriterEntry, res pxewriter.Result) {
	u.Registry.Remove(entry)

	if res.Err != nil {
		u.Logger.Error("pxe writer finished with error", "hostId", entry.HostID, "pxefile", entry.PxeFile, "error", res.Err, "cancelled", res.Cancelled)
		return
	}

	reenter := false
	updates := make([]model.ProductOnClient, 0, len(entry.ProductsOnClient))
	for _, p := range entry.ProductsOnClient {
		if p.ActionRequest == model.BootActionAlways {
			reenter = true
		}
		p.ActionProgress = model.ActionProgressPXERead
		if !entry.IsDefaultTemplate {
			p.ActionRequest = model.BootActionNone
		}
		updates = append(updates, p)
	}

	if err := be.UpdateProductOnClients(context.Background(), updates); err != nil {
		u.Logger.Error("failed to flush product-on-client updates", "hostId", entry.HostID, "error", err)
	}

	if reenter {
		if _, err := u.Update(context.Background(), string(entry.HostID), ""); err != nil {
			u.Logger.Error("failed to re-enter updater for always action", "hostId", entry.HostID, "error", err)
		}
	}
}

func withRPCSuffix(url string) string {
	if url == "" {
		return ""
	}
	if strings.HasSuffix(url, "/rpc") {
		return url
	}
	return strings.TrimRight(url, "/") + "/rpc"
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
