package control

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cochaviz/opsipxeconfd/internal/backend/fake"
	"github.com/cochaviz/opsipxeconfd/internal/logging"
	"github.com/cochaviz/opsipxeconfd/internal/registry"
	"github.com/cochaviz/opsipxeconfd/internal/updater"
)

type fakeStopper struct {
	mu       sync.Mutex
	requests int
}

func (f *fakeStopper) RequestStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
}

func (f *fakeStopper) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func startServer(t *testing.T) (*Server, *Client, *fakeStopper) {
	t.Helper()

	dir := t.TempDir()
	socketPath := filepath.Join(dir, "opsipxeconfd.socket")
	tmplPath := filepath.Join(dir, "install.template")
	if err := os.WriteFile(tmplPath, []byte("append a=1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	be := fake.New()
	reg := registry.New()
	up := updater.New(be, reg, "depot1", dir, tmplPath, logging.Ensure(nil))
	stopper := &fakeStopper{}

	srv := New(socketPath, 10, reg, up, stopper, logging.Ensure(nil))
	if err := srv.Bind(); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go srv.Serve(ctx)
	t.Cleanup(srv.Stop)

	return srv, NewClient(socketPath), stopper
}

func TestControlStatusCountsOwnConnectionAndNoWriters(t *testing.T) {
	t.Parallel()

	_, client, _ := startServer(t)

	reply, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	// The status request's own connection is open while the report is
	// built, so it is the one connection counted.
	if !strings.Contains(reply, "1 control connection(s) established") {
		t.Fatalf("Status() = %q, want connection count line", reply)
	}
	if !strings.Contains(reply, "0 boot configuration(s) set") {
		t.Fatalf("Status() = %q, want writer count line", reply)
	}
}

func TestControlUnknownCommandIsError(t *testing.T) {
	t.Parallel()

	_, client, _ := startServer(t)

	reply, err := client.Send("bogus")
	if err == nil {
		t.Fatal("Send() error = nil, want error for unknown command")
	}
	if !strings.HasPrefix(reply, ErrorPrefix) {
		t.Fatalf("Send() reply = %q, want (ERROR) prefix", reply)
	}
}

func TestControlUpdateMissingClientIdIsError(t *testing.T) {
	t.Parallel()

	_, client, _ := startServer(t)

	reply, err := client.Send("update")
	if err == nil {
		t.Fatal("Send() error = nil, want error for update without clientId")
	}
	if !strings.HasPrefix(reply, ErrorPrefix) {
		t.Fatalf("Send() reply = %q, want (ERROR) prefix", reply)
	}
}

func TestControlStopInvokesStopper(t *testing.T) {
	t.Parallel()

	_, client, stopper := startServer(t)

	reply, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if reply != "opsipxeconfd is going down" {
		t.Fatalf("Stop() reply = %q", reply)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && stopper.Requests() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if stopper.Requests() != 1 {
		t.Fatalf("Stopper.Requests() = %d, want 1", stopper.Requests())
	}
}
