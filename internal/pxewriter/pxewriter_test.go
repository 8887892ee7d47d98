package pxewriter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cochaviz/opsipxeconfd/internal/model"
)

func writeTemplate(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "install.template")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestWriterCompletesOnFirstRead(t *testing.T) {
	t.Parallel()

	tmplPath := writeTemplate(t, "append initrd=opsi\n")
	pxefile := filepath.Join(t.TempDir(), "01-aa-bb-cc-dd-ee-ff")

	resultc := make(chan Result, 1)
	w, err := New(pxefile, tmplPath, nil, model.NewAppendBag(), "h1", func(r Result) { resultc <- r })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := os.Stat(pxefile); err != nil {
		t.Fatalf("fifo not created: %v", err)
	}

	entry := &model.WriterEntry{}
	w.Start(entry)

	readDone := make(chan []byte, 1)
	go func() {
		f, err := os.OpenFile(pxefile, os.O_RDONLY, 0)
		if err != nil {
			t.Errorf("reader open() error = %v", err)
			readDone <- nil
			return
		}
		defer f.Close()
		buf := make([]byte, 4096)
		n, _ := f.Read(buf)
		readDone <- buf[:n]
	}()

	select {
	case got := <-readDone:
		if string(got) != "append initrd=opsi hn=h1\n" {
			t.Fatalf("reader got %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reader never saw data")
	}

	select {
	case r := <-resultc:
		if r.Err != nil {
			t.Fatalf("Result.Err = %v, want nil", r.Err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onComplete never called")
	}

	<-entry.Done

	if _, err := os.Stat(pxefile); !os.IsNotExist(err) {
		t.Fatalf("fifo still present after completion, stat err = %v", err)
	}
}

func TestWriterCancellationUnlinksAndReportsCancelled(t *testing.T) {
	t.Parallel()

	tmplPath := writeTemplate(t, "append a=1\n")
	pxefile := filepath.Join(t.TempDir(), "01-aa-bb-cc-dd-ee-ff")

	resultc := make(chan Result, 1)
	w, err := New(pxefile, tmplPath, nil, model.NewAppendBag(), "h1", func(r Result) { resultc <- r })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	entry := &model.WriterEntry{}
	w.Start(entry)

	entry.Cancel()

	select {
	case r := <-resultc:
		if !r.Cancelled {
			t.Fatalf("Result.Cancelled = false, want true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onComplete never called after cancellation")
	}

	<-entry.Done

	if _, err := os.Stat(pxefile); !os.IsNotExist(err) {
		t.Fatalf("fifo still present after cancellation, stat err = %v", err)
	}
}

func TestWriterConstructionFailsOnMissingTemplate(t *testing.T) {
	t.Parallel()

	pxefile := filepath.Join(t.TempDir(), "01-aa-bb-cc-dd-ee-ff")
	_, err := New(pxefile, filepath.Join(t.TempDir(), "missing"), nil, model.NewAppendBag(), "h1", func(Result) {})
	if err == nil {
		t.Fatal("New() error = nil, want error for missing template")
	}
	if _, statErr := os.Stat(pxefile); !os.IsNotExist(statErr) {
		t.Fatal("fifo created despite render failure")
	}
}

func TestWriterConstructionRemovesStaleFile(t *testing.T) {
	t.Parallel()

	tmplPath := writeTemplate(t, "append a=1\n")
	pxefile := filepath.Join(t.TempDir(), "01-aa-bb-cc-dd-ee-ff")
	if err := os.WriteFile(pxefile, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := New(pxefile, tmplPath, nil, model.NewAppendBag(), "h1", func(Result) {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	info, err := os.Stat(pxefile)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Fatal("pxefile is not a FIFO after construction")
	}
}
