package flash

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryFlashSemantics(t *testing.T) {
	mem := NewMemory(0x1000, 256, 2, 8)

	tests := []struct {
		name   string
		op     func() error
		errMsg string
	}{
		{
			name:   "misaligned address",
			op:     func() error { return mem.WriteAligned(0x1004, make([]byte, 8)) },
			errMsg: "not 8-byte aligned",
		},
		{
			name:   "misaligned length",
			op:     func() error { return mem.WriteAligned(0x1000, make([]byte, 5)) },
			errMsg: "not 8-byte aligned",
		},
		{
			name:   "below range",
			op:     func() error { return mem.WriteAligned(0x0FF8, make([]byte, 8)) },
			errMsg: "outside flash",
		},
		{
			name:   "past range",
			op:     func() error { return mem.WriteAligned(0x11F8, make([]byte, 16)) },
			errMsg: "outside flash",
		},
		{
			name:   "erase inside a page",
			op:     func() error { return mem.ErasePage(0x1008) },
			errMsg: "not page aligned",
		},
		{
			name: "read past range",
			op: func() error {
				_, err := mem.Read(0x11FF, 2)
				return err
			},
			errMsg: "outside flash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestMemoryRequiresErase(t *testing.T) {
	mem := NewMemory(0, 64, 1, 8)
	chunk := bytes.Repeat([]byte{0x11}, 8)

	if err := mem.WriteAligned(0, chunk); err != nil {
		t.Fatalf("first write error: %v", err)
	}
	if err := mem.WriteAligned(0, chunk); err == nil || !strings.Contains(err.Error(), "not erased") {
		t.Errorf("second write error = %v, want not erased", err)
	}
	if err := mem.ErasePage(0); err != nil {
		t.Fatalf("ErasePage() error: %v", err)
	}
	if err := mem.WriteAligned(0, chunk); err != nil {
		t.Errorf("write after erase error: %v", err)
	}

	erases, writes := mem.Counts()
	if erases != 1 || writes != 2 {
		t.Errorf("Counts() = %d, %d, want 1, 2", erases, writes)
	}
}

func TestMemorySaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flash.bin")

	mem := NewMemory(0x2000, 64, 1, 8)
	if err := mem.WriteAligned(0x2008, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("WriteAligned() error: %v", err)
	}
	if err := mem.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	restored := NewMemory(0x2000, 64, 1, 8)
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got, err := restored.Read(0x2008, 8)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("restored = % X", got)
	}

	if err := NewMemory(0, 64, 1, 8).Load(filepath.Join(dir, "missing.bin")); err != nil {
		t.Errorf("Load() of missing file error: %v", err)
	}

	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if err := restored.Load(path); err == nil || !strings.Contains(err.Error(), "is 3 bytes") {
		t.Errorf("Load() error = %v, want size mismatch", err)
	}
}
