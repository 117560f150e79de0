package crypto

// FileEncryptor is the symmetric confidentiality primitive for quarantined
// payloads. Nothing outside this package may read quarantine ciphertext
// without the key.
//
// Blob layout for every operation: IV (16 bytes) || AES-256-CBC ciphertext
// with block-aligned padding. The IV is randomized per call, so encrypting
// the same plaintext twice yields different blobs that both decrypt to the
// original bytes.
type FileEncryptor interface {
	// GenerateKey returns 32 bytes (256 bits) from the OS CSPRNG.
	// Returns ErrRandomSource if the random read fails.
	GenerateKey() ([]byte, error)

	// EncryptData encrypts plaintext with key using AES-256-CBC and
	// block-aligned padding. The returned blob is IV || ciphertext.
	EncryptData(plaintext, key []byte) ([]byte, error)

	// DecryptData splits the first 16 bytes of blob as the IV, decrypts
	// the remainder and strips the padding. Returns ErrCiphertextTooShort
	// or ErrInvalidPadding on malformed input.
	DecryptData(blob, key []byte) ([]byte, error)

	// EncryptFile encrypts the file at inputPath into outputPath.
	// On failure no partially written outputPath is left behind.
	EncryptFile(inputPath, outputPath string, key []byte) error

	// DecryptFile decrypts the blob at inputPath into outputPath.
	// On failure no partially written outputPath is left behind.
	DecryptFile(inputPath, outputPath string, key []byte) error
}
