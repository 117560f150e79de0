package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadOrCreateKey_FirstRunCreatesKeyFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "quarantine")

	buf, err := LoadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateKey error: %v", err)
	}
	defer buf.Destroy()

	if buf.Size() != KeySize {
		t.Fatalf("key size = %d, want %d", buf.Size(), KeySize)
	}

	path := filepath.Join(dir, KeyFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read key file: %v", err)
	}
	if len(raw) != KeySize {
		t.Fatalf("key file holds %d bytes, want %d", len(raw), KeySize)
	}
	if !bytes.Equal(raw, buf.Bytes()) {
		t.Fatalf("key file content does not match loaded key")
	}

	if runtime.GOOS != "windows" {
		info, statErr := os.Stat(path)
		if statErr != nil {
			t.Fatalf("stat key file: %v", statErr)
		}
		if info.Mode().Perm() != 0o600 {
			t.Fatalf("key file mode = %o, want 600", info.Mode().Perm())
		}

		dirInfo, statErr := os.Stat(dir)
		if statErr != nil {
			t.Fatalf("stat quarantine dir: %v", statErr)
		}
		if dirInfo.Mode().Perm() != 0o700 {
			t.Fatalf("quarantine dir mode = %o, want 700", dirInfo.Mode().Perm())
		}
	}
}

func TestLoadOrCreateKey_SecondRunLoadsSameKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "quarantine")

	first, err := LoadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateKey error: %v", err)
	}
	firstKey := append([]byte(nil), first.Bytes()...)
	first.Destroy()

	second, err := LoadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateKey (second run) error: %v", err)
	}
	defer second.Destroy()

	if !bytes.Equal(firstKey, second.Bytes()) {
		t.Fatalf("expected the same key across runs")
	}
}

func TestLoadOrCreateKey_DeniedKeyWriteIsErrPermission(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits required")
	}
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := filepath.Join(t.TempDir(), "quarantine")
	if err := os.Mkdir(dir, 0o500); err != nil {
		t.Fatalf("create read-only dir: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	_, err := LoadOrCreateKey(dir)
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestLoadOrCreateKey_RejectsWrongSizeKeyFile(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, KeyFileName), make([]byte, 16), 0o600); err != nil {
		t.Fatalf("write bogus key file: %v", err)
	}

	_, err := LoadOrCreateKey(dir)
	if !errors.Is(err, ErrInvalidKeySize) {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
}
