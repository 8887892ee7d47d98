// Package pxewriter implements the scoped, one-shot FIFO worker: it owns
// exactly one named pipe from creation through the first (and only)
// reader, then tears itself down. The open-for-write retry loop follows
// the timer-vs-ctx.Done() select shape used for backoff elsewhere in the
// pack, adapted here to x/sys/unix because the os package cannot express
// a non-blocking open on a FIFO portably.
package pxewriter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cochaviz/opsipxeconfd/internal/model"
	"github.com/cochaviz/opsipxeconfd/internal/render"
)

// RetryInterval is the backoff between failed non-blocking opens while
// waiting for the PXE bootloader to open the read end.
const RetryInterval = time.Second

// Result is the terminal status passed to a Writer's completion
// callback, invoked exactly once regardless of how the writer exited.
type Result struct {
	// Err is nil on a successful write-and-unlink, non-nil on
	// cancellation or any I/O failure.
	Err error
	// Cancelled is true when Err is the result of an external stop
	// request rather than an I/O failure.
	Cancelled bool
}

// Writer owns one FIFO from construction to its first successful read,
// or to cancellation/failure, whichever comes first.
type Writer struct {
	pxefile    string
	rendered   string
	onComplete func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New renders templatePath against props/bag and creates the FIFO at
// pxefile (mode 0644), rendering eagerly so that a template failure
// surfaces before any pipe exists for a reader to find. onComplete is
// invoked exactly once, from the writer's own goroutine, after the FIFO
// is unlinked and before the entry's Done channel closes.
func New(pxefile, templatePath string, props model.PropertyMap, bag *model.AppendBag, shortHostname string, onComplete func(Result)) (*Writer, error) {
	rendered, err := render.Render(templatePath, props, bag, shortHostname)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", templatePath, err)
	}

	if err := removeIfExists(pxefile); err != nil {
		return nil, fmt.Errorf("clear stale pxefile %s: %w", pxefile, err)
	}
	if err := unix.Mkfifo(pxefile, 0o644); err != nil {
		return nil, fmt.Errorf("mkfifo %s: %w", pxefile, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		pxefile:    pxefile,
		rendered:   rendered,
		onComplete: onComplete,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Start launches the writer's retry loop in its own goroutine and sets
// entry's Cancel and Done, so the caller (the updater, via the registry)
// can use entry to track and cancel it.
func (w *Writer) Start(entry *model.WriterEntry) {
	entry.Cancel = w.cancel
	entry.Done = w.done
	go w.run()
}

func (w *Writer) run() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			w.finish(Result{Err: w.ctx.Err(), Cancelled: true})
			return
		default:
		}

		fd, err := unix.Open(w.pxefile, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			if errors.Is(err, unix.ENXIO) {
				if w.waitForRetry() {
					w.finish(Result{Err: w.ctx.Err(), Cancelled: true})
					return
				}
				continue
			}
			w.finish(Result{Err: fmt.Errorf("open %s: %w", w.pxefile, err)})
			return
		}

		f := os.NewFile(uintptr(fd), w.pxefile)
		_, writeErr := f.Write([]byte(w.rendered))
		closeErr := f.Close()

		if writeErr != nil {
			w.finish(Result{Err: fmt.Errorf("write %s: %w", w.pxefile, writeErr)})
			return
		}
		if closeErr != nil {
			w.finish(Result{Err: fmt.Errorf("close %s: %w", w.pxefile, closeErr)})
			return
		}
		w.finish(Result{})
		return
	}
}

// finish unlinks the FIFO before invoking onComplete, so teardown is
// always complete by the time a reentrant caller (e.g. an
// "always"-action reschedule materialising a fresh FIFO at the same
// path) observes the callback return.
func (w *Writer) finish(res Result) {
	removeIfExists(w.pxefile)
	w.onComplete(res)
}

// waitForRetry blocks for RetryInterval or until the writer is
// cancelled, whichever is first. It reports whether cancellation won.
func (w *Writer) waitForRetry() bool {
	timer := time.NewTimer(RetryInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false
	case <-w.ctx.Done():
		return true
	}
}
