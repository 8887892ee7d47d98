package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

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

func TestRenderAppendLineOverridesPreservingOrder(t *testing.T) {
	t.Parallel()

	path := writeTemplate(t, "label linux\nappend a=1 b=2\n")

	override := model.NewAppendBag()
	override.Set("b", "9")
	override.Set("c", "3")

	out, err := Render(path, nil, override, "h1")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var appendLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "append") {
			appendLine = line
		}
	}
	want := "append a=1 b=9 hn=h1 c=3"
	if appendLine != want {
		t.Fatalf("append line = %q, want %q", appendLine, want)
	}
}

func TestRenderSubstitutesProperties(t *testing.T) {
	t.Parallel()

	path := writeTemplate(t, "kernel /vmlinuz-%os%\n")
	props := model.PropertyMap{"os": "linux"}

	out, err := Render(path, props, model.NewAppendBag(), "h1")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "kernel /vmlinuz-linux") {
		t.Fatalf("Render() = %q, want substituted property", out)
	}
}

func TestRenderUnknownPropertyBecomesEmpty(t *testing.T) {
	t.Parallel()

	path := writeTemplate(t, "kernel /vmlinuz-%missing%\n")

	out, err := Render(path, nil, model.NewAppendBag(), "h1")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "kernel /vmlinuz-\n") {
		t.Fatalf("Render() = %q, want empty substitution", out)
	}
}

func TestRenderAppendSeedsHostShortName(t *testing.T) {
	t.Parallel()

	path := writeTemplate(t, "append initrd=opsi root=/dev/ram0\n")

	override := model.NewAppendBag()
	override.Set("pckey", "deadbeef")
	override.Set("dn", "example.org")
	override.Set("product", "win10")
	override.Set("service", "https://s.example.org:4447/rpc")

	out, err := Render(path, nil, override, "h1")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := "append initrd=opsi root=/dev/ram0 hn=h1 pckey=deadbeef dn=example.org product=win10 service=https://s.example.org:4447/rpc"
	var got string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "append") {
			got = line
		}
	}
	if got != want {
		t.Fatalf("append line = %q, want %q", got, want)
	}
}

func TestRenderMissingTemplate(t *testing.T) {
	t.Parallel()

	if _, err := Render(filepath.Join(t.TempDir(), "missing"), nil, model.NewAppendBag(), "h1"); err == nil {
		t.Fatal("Render() error = nil, want error for missing template")
	}
}
