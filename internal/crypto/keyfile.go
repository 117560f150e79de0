package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
)

// KeyFileName is the fixed name of the key file inside the quarantine
// directory.
const KeyFileName = "encryption.key"

// LoadOrCreateKey loads the 32-byte encryption key from
// <dir>/encryption.key, generating and persisting a fresh key on first
// run. The quarantine directory is created with owner-only permissions if
// absent, and the key file itself is written with mode 0600.
//
// The key is returned inside a memguard locked buffer: the process owns
// exactly one copy, it never appears in logs or error messages, and it is
// wiped from memory when the buffer is destroyed.
func LoadOrCreateKey(dir string) (*memguard.LockedBuffer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, wrapPermission("create quarantine directory", err)
	}

	path := filepath.Join(dir, KeyFileName)

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(raw) != KeySize {
			return nil, fmt.Errorf("%w: key file %s holds %d bytes", ErrInvalidKeySize, path, len(raw))
		}
		// NewBufferFromBytes wipes raw after copying it into locked memory.
		return memguard.NewBufferFromBytes(raw), nil

	case os.IsNotExist(err):
		key, genErr := NewFileEncryptor().GenerateKey()
		if genErr != nil {
			return nil, genErr
		}

		if writeErr := os.WriteFile(path, key, 0o600); writeErr != nil {
			return nil, wrapPermission("write key file", writeErr)
		}

		return memguard.NewBufferFromBytes(key), nil

	default:
		return nil, wrapPermission("read key file", err)
	}
}

// wrapPermission wraps err with [ErrPermission] when the OS denied the
// operation, so callers can match the denial without inspecting *os.PathError.
func wrapPermission(msg string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", ErrPermission, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
