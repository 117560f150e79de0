package crypto

import "errors"

// Sentinel errors returned by the file-encryption primitives. Callers match
// them with [errors.Is]. Decryption failures are deliberately categorical:
// beyond "too short" and "invalid padding" no detail about why a blob failed
// to decrypt is ever exposed, so callers that forward errors to untrusted
// contexts cannot leak padding-oracle information.
var (
	// ErrInvalidKeySize is returned when a key is not exactly 32 bytes.
	// Key sizes are validated at the API boundary, never inside the
	// cipher call.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrCiphertextTooShort is returned when a blob is too small to hold
	// an IV and at least one cipher block.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrInvalidPadding is returned when the decrypted plaintext does not
	// end in valid block padding. A wrong key and a corrupted blob are
	// indistinguishable through this error.
	ErrInvalidPadding = errors.New("invalid padding")

	// ErrRandomSource is returned when the system CSPRNG is unavailable.
	ErrRandomSource = errors.New("system random source unavailable")

	// ErrPermission is returned when the OS denies a file mode or
	// ownership operation, such as creating the quarantine directory or
	// writing the key file.
	ErrPermission = errors.New("permission denied")
)
