package supervisor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cochaviz/opsipxeconfd/internal/backend"
	"github.com/cochaviz/opsipxeconfd/internal/backend/fake"
	"github.com/cochaviz/opsipxeconfd/internal/config"
	"github.com/cochaviz/opsipxeconfd/internal/logging"
)

func writeConfig(t *testing.T, dir, pxeDir, tmplPath string) string {
	t.Helper()
	path := filepath.Join(dir, "opsipxeconfd.conf")
	contents := "pxe config dir = " + pxeDir + "\n" +
		"pxe config template = " + tmplPath + "\n" +
		"max control connections = 5\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func fakeFactory(be *fake.Backend) BackendFactory {
	return func(cfg config.Config, logger *slog.Logger) (backend.Port, error) {
		return be, nil
	}
}

func TestSupervisorStartReachesRunningAndStopsOnRequestStop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pxeDir := filepath.Join(dir, "pxe")
	if err := os.MkdirAll(pxeDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	tmplPath := filepath.Join(dir, "install.template")
	if err := os.WriteFile(tmplPath, []byte("append a=1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfgPath := writeConfig(t, dir, pxeDir, tmplPath)
	socketPath := filepath.Join(dir, "control.socket")

	be := fake.New()
	sup := New(cfgPath, socketPath, "depot1", fakeFactory(be), logging.Ensure(nil))

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		done <- sup.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sup.State() == StateRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sup.State() != StateRunning {
		t.Fatalf("supervisor never reached StateRunning, stuck at %s", sup.State())
	}

	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("control socket not bound: %v", err)
	}

	sup.RequestStop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after RequestStop")
	}

	if sup.State() != StateStopped {
		t.Fatalf("State() = %s, want stopped", sup.State())
	}
}

func TestSupervisorStartFailsOnMalformedConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "opsipxeconfd.conf")
	if err := os.WriteFile(cfgPath, []byte("max control connections = not-a-number\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	sup := New(cfgPath, filepath.Join(dir, "control.socket"), "depot1", fakeFactory(fake.New()), logging.Ensure(nil))

	if err := sup.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil, want error for malformed config")
	}
}

func TestSupervisorReloadRebindsSocketAndKeepsRegistry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pxeDir := filepath.Join(dir, "pxe")
	if err := os.MkdirAll(pxeDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	tmplPath := filepath.Join(dir, "install.template")
	if err := os.WriteFile(tmplPath, []byte("append a=1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfgPath := writeConfig(t, dir, pxeDir, tmplPath)
	socketPath := filepath.Join(dir, "control.socket")

	be := fake.New()
	sup := New(cfgPath, socketPath, "depot1", fakeFactory(be), logging.Ensure(nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sup.State() != StateRunning {
		time.Sleep(10 * time.Millisecond)
	}
	if sup.State() != StateRunning {
		t.Fatal("supervisor never reached StateRunning")
	}

	if err := sup.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("control socket missing after reload: %v", err)
	}

	sup.RequestStop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after RequestStop")
	}
}
