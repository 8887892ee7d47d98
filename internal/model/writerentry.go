package model

import (
	"context"
	"time"
)

// WriterEntry is a snapshot of one active boot configuration, as tracked
// by the writer registry (internal/registry) and reported by the control
// server's "status" command.
type WriterEntry struct {
	HostID            HostID
	PxeFile           string
	TemplatePath      string
	IsDefaultTemplate bool
	Append            *AppendBag
	ProductsOnClient  []ProductOnClient
	StartTime         time.Time

	// Cancel requests the owning writer to stop its retry loop at the
	// next iteration. Done is closed once the writer has fully torn
	// itself down (FIFO unlinked, completion callback invoked).
	Cancel context.CancelFunc
	Done   <-chan struct{}
}
