package model

import "testing"

func TestCanonicalizeHostID(t *testing.T) {
	t.Parallel()

	id, err := CanonicalizeHostID(" H1.Example.ORG ")
	if err != nil {
		t.Fatalf("CanonicalizeHostID() error = %v", err)
	}
	if id != "h1.example.org" {
		t.Fatalf("CanonicalizeHostID() = %q, want %q", id, "h1.example.org")
	}
	if id.ShortName() != "h1" {
		t.Fatalf("ShortName() = %q, want %q", id.ShortName(), "h1")
	}
	if id.Domain() != "example.org" {
		t.Fatalf("Domain() = %q, want %q", id.Domain(), "example.org")
	}
}

func TestCanonicalizeHostIDRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := CanonicalizeHostID("   "); err == nil {
		t.Fatal("CanonicalizeHostID() error = nil, want error for empty id")
	}
	if _, err := CanonicalizeHostID("nodotshere"); err == nil {
		t.Fatal("CanonicalizeHostID() error = nil, want error for non-fqdn")
	}
}

func TestPxeConfigNameFromMAC(t *testing.T) {
	t.Parallel()

	name, err := PxeConfigName(HostRecord{MAC: "AA:BB:CC:DD:EE:FF"})
	if err != nil {
		t.Fatalf("PxeConfigName() error = %v", err)
	}
	if name != "01-aa-bb-cc-dd-ee-ff" {
		t.Fatalf("PxeConfigName() = %q, want %q", name, "01-aa-bb-cc-dd-ee-ff")
	}
}

func TestPxeConfigNameFromIPv4(t *testing.T) {
	t.Parallel()

	name, err := PxeConfigName(HostRecord{IPv4: "192.168.1.10"})
	if err != nil {
		t.Fatalf("PxeConfigName() error = %v", err)
	}
	if name != "C0A8010A" {
		t.Fatalf("PxeConfigName() = %q, want %q", name, "C0A8010A")
	}
}

func TestPxeConfigNameNoAddress(t *testing.T) {
	t.Parallel()

	if _, err := PxeConfigName(HostRecord{HostID: "h1.example.org"}); err == nil {
		t.Fatal("PxeConfigName() error = nil, want ErrNoAddress")
	}
}

func TestAppendBagMergeOverPreservesOrder(t *testing.T) {
	t.Parallel()

	base := NewAppendBag()
	base.Set("a", "1")
	base.Set("b", "2")

	override := NewAppendBag()
	override.Set("b", "9")
	override.Set("c", "3")

	base.MergeOver(override)

	want := []string{"a", "b", "c"}
	got := base.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if v, _ := base.Get("b"); v != "9" {
		t.Fatalf("Get(\"b\") = %q, want %q", v, "9")
	}
	if base.Render() != "a=1 b=9 c=3" {
		t.Fatalf("Render() = %q, want %q", base.Render(), "a=1 b=9 c=3")
	}
}

func TestSecretRedactsInLogsAndFormatting(t *testing.T) {
	t.Parallel()

	s := NewSecret("deadbeef")
	if s.String() != "REDACTED" {
		t.Fatalf("String() = %q, want REDACTED", s.String())
	}
	if s.Reveal() != "deadbeef" {
		t.Fatalf("Reveal() = %q, want deadbeef", s.Reveal())
	}
	if s.LogValue().String() != "REDACTED" {
		t.Fatalf("LogValue() = %q, want REDACTED", s.LogValue().String())
	}
}
