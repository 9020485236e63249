package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the root command with an isolated config file.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: cli-test\nlog_level: error\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	var out bytes.Buffer
	cmd := RootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	for _, want := range []string{"vmboot version", "VMBoot-4.6.3", "configured cli-test", "max image: 994 bytes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFlashCommandMissingImage(t *testing.T) {
	_, err := run(t, "flash", filepath.Join(t.TempDir(), "missing.bin"))
	if err == nil || !strings.Contains(err.Error(), "failed to load image") {
		t.Errorf("error = %v, want image load failure", err)
	}
}

func TestFlashCommandArgs(t *testing.T) {
	if _, err := run(t, "flash"); err == nil {
		t.Error("flash without an image should fail")
	}
}

func TestServeCommandWithoutPort(t *testing.T) {
	image := filepath.Join(t.TempDir(), "flash.bin")
	_, err := run(t, "serve", "--port", "", "--flash-image", image)
	if err == nil || !strings.Contains(err.Error(), "serial port name cannot be empty") {
		t.Errorf("error = %v, want missing port", err)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "--log-level", "loud", "version")
	if err == nil || !strings.Contains(err.Error(), "log level") {
		t.Errorf("error = %v, want log level error", err)
	}
	logLevel = ""
}
