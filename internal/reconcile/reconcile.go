// Package reconcile implements the startup reconciliation task: once
// per daemon start, every client of this depot with a pending netboot
// action is run through the updater. Per-host errors are logged and
// skipped, matching the rest of the pack's "never abort a batch on one
// item's failure" convention.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/cochaviz/opsipxeconfd/internal/backend"
	"github.com/cochaviz/opsipxeconfd/internal/logging"
	"github.com/cochaviz/opsipxeconfd/internal/updater"
)

// Task enumerates this depot's clients and updates each one with a
// pending action, stopping early if cancelled.
type Task struct {
	Backend backend.Port
	Updater *updater.Updater
	DepotID string
	Logger  *slog.Logger
}

// New returns a Task wired to backend and updater for depotID.
func New(be backend.Port, up *updater.Updater, depotID string, logger *slog.Logger) *Task {
	return &Task{
		Backend: be,
		Updater: up,
		DepotID: depotID,
		Logger:  logging.Ensure(logger).With("component", "reconcile"),
	}
}

// Run enumerates depot clients and calls the updater for each, finishing
// the host in progress before honouring ctx cancellation.
func (t *Task) Run(ctx context.Context) error {
	clients, err := t.Backend.ListDepotClients(ctx, t.DepotID)
	if err != nil {
		return err
	}

	t.Logger.Info("starting reconciliation", "depotId", t.DepotID, "clients", len(clients))

	for _, hostID := range clients {
		select {
		case <-ctx.Done():
			t.Logger.Info("reconciliation cancelled", "depotId", t.DepotID)
			return nil
		default:
		}

		// Update itself no-ops for a client with no pending action, so
		// reconciliation doesn't need its own ListNetbootActions pass
		// just to filter the client list first.
		if _, err := t.Updater.Update(context.WithoutCancel(ctx), string(hostID), ""); err != nil {
			t.Logger.Error("reconciliation failed for host, skipping", "hostId", hostID, "error", err)
		}
	}

	t.Logger.Info("reconciliation complete", "depotId", t.DepotID)
	return nil
}
