package diag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"volreg/pkg/regerr"
)

// TestFileRouting verifies each channel writes only to its own file.
func TestFileRouting(t *testing.T) {
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "info.log")
	warnPath := filepath.Join(dir, "warn.log")

	c, err := New(Config{Info: infoPath, Warning: warnPath})
	if err != nil {
		t.Fatal(err)
	}
	c.Info("processed %d volumes", 3)
	c.Warning("stride clamped to %d", 1)
	c.Error("should go nowhere")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.ReadFile(infoPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(info), "processed 3 volumes") {
		t.Fatalf("info log missing message: %q", info)
	}
	if strings.Contains(string(info), "stride clamped") {
		t.Fatal("warning leaked into the info channel")
	}

	warn, err := os.ReadFile(warnPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(warn), "stride clamped to 1") {
		t.Fatalf("warning log missing message: %q", warn)
	}
}

// TestSuppressedChannels verifies Discard accepts writes without
// side effects and Close tolerates repeat calls.
func TestSuppressedChannels(t *testing.T) {
	c := Discard()
	c.Info("dropped")
	c.Warning("dropped")
	c.Error("dropped")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

// TestAppendSemantics verifies reopening a destination appends rather
// than truncates.
func TestAppendSemantics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	for i := 0; i < 2; i++ {
		c, err := New(Config{Error: path})
		if err != nil {
			t.Fatal(err)
		}
		c.Error("run %d failed", i)
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "run 0 failed") || !strings.Contains(string(data), "run 1 failed") {
		t.Fatalf("append lost a record: %q", data)
	}
}

// TestUnopenableDestination verifies the IOError path and that no file
// handles leak when a later channel fails.
func TestUnopenableDestination(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Config{
		Info:  filepath.Join(dir, "ok.log"),
		Error: filepath.Join(dir, "no", "such", "dir", "err.log"),
	})
	if err == nil {
		t.Fatal("expected error for unopenable destination")
	}
	if regerr.KindOf(err) != regerr.IOError {
		t.Fatalf("error kind = %v, want IOError", regerr.KindOf(err))
	}
}
