package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cochaviz/opsipxeconfd/internal/model"
)

func TestCLIHandlerRedactsLogValuer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewCLI(&buf, nil)
	logger.Info("rendered append", "pckey", model.NewSecret("deadbeef"), "hostId", "h1.example.org")

	out := buf.String()
	if strings.Contains(out, "deadbeef") {
		t.Fatalf("log output leaked secret: %q", out)
	}
	if !strings.Contains(out, "pckey=REDACTED") {
		t.Fatalf("log output = %q, want pckey=REDACTED", out)
	}
}

func TestParseModeFallsBackToCLI(t *testing.T) {
	t.Parallel()

	if ParseMode("json") != ModeJSON {
		t.Fatal("ParseMode(\"json\") did not return ModeJSON")
	}
	if ParseMode("bogus") != ModeCLI {
		t.Fatal("ParseMode(\"bogus\") did not fall back to ModeCLI")
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	t.Parallel()

	cases := map[int]string{0: "WARN", 3: "WARN", 4: "INFO", 6: "INFO", 7: "DEBUG", 9: "DEBUG"}
	for v, want := range cases {
		if got := LevelFromVerbosity(v).String(); got != want {
			t.Fatalf("LevelFromVerbosity(%d) = %s, want %s", v, got, want)
		}
	}
}
