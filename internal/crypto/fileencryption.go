package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
)

const (
	// KeySize is the fixed AES-256 key length in bytes.
	KeySize = 32

	// IVSize is the fixed CBC initialization-vector length in bytes.
	IVSize = aes.BlockSize
)

// fileEncryptor is the private implementation of [FileEncryptor]. It is
// stateless; the key is owned by the caller and passed into every call.
type fileEncryptor struct{}

// NewFileEncryptor constructs a [FileEncryptor].
func NewFileEncryptor() FileEncryptor {
	return &fileEncryptor{}
}

// GenerateKey implements [FileEncryptor]. It reads 32 random bytes from the
// OS CSPRNG. Returns ErrRandomSource if the random read fails.
func (f *fileEncryptor) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	return key, nil
}

// generateIV reads 16 random bytes from the OS CSPRNG. A fresh IV is drawn
// for every encryption call; an IV is never reused under the same key.
func (f *fileEncryptor) generateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	return iv, nil
}

// validateKey rejects any key that is not exactly 32 bytes. The check sits
// at the API boundary so aes.NewCipher never sees a malformed key.
func validateKey(key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKeySize
	}
	return nil
}

// EncryptData implements [FileEncryptor]. The plaintext is padded to a
// whole number of cipher blocks (PKCS#7), encrypted with AES-256-CBC under
// a fresh random IV, and returned as IV || ciphertext.
func (f *fileEncryptor) EncryptData(plaintext, key []byte) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	iv, err := f.generateIV()
	if err != nil {
		return nil, err
	}

	padded := pad(plaintext)

	// Prepend the IV so DecryptData can split it out.
	blob := make([]byte, IVSize+len(padded))
	copy(blob, iv)

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(blob[IVSize:], padded)

	return blob, nil
}

// DecryptData implements [FileEncryptor]. It splits the first 16 bytes of
// blob as the IV, decrypts the remainder with AES-256-CBC, then validates
// and strips the padding.
func (f *fileEncryptor) DecryptData(blob, key []byte) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	// The smallest valid blob is one IV plus one padded cipher block.
	if len(blob) < IVSize+aes.BlockSize {
		return nil, ErrCiphertextTooShort
	}

	iv, ciphertext := blob[:IVSize], blob[IVSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidPadding
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	return unpad(plaintext)
}

// fileChunkSize is the streaming buffer size for file operations. It must
// be a multiple of aes.BlockSize so CBC state carries cleanly across chunks.
const fileChunkSize = 64 * 1024

// EncryptFile implements [FileEncryptor]. The input is streamed through the
// cipher in fixed-size chunks, so file size does not affect memory use. The
// output is written to a temporary sibling of outputPath and renamed into
// place only after a successful write, so a failure never leaves a partial
// output file.
func (f *fileEncryptor) EncryptFile(inputPath, outputPath string, key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	iv, err := f.generateIV()
	if err != nil {
		return err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	defer in.Close()

	return writeAtomic(outputPath, 0o600, func(w io.Writer) error {
		if _, err := w.Write(iv); err != nil {
			return err
		}

		mode := cipher.NewCBCEncrypter(block, iv)
		buf := make([]byte, fileChunkSize)

		for {
			n, readErr := io.ReadFull(in, buf)
			if readErr == nil {
				mode.CryptBlocks(buf, buf)
				if _, err := w.Write(buf); err != nil {
					return err
				}
				continue
			}
			if readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
				return fmt.Errorf("read input file: %w", readErr)
			}

			// Last chunk, possibly empty. Padding always adds at
			// least one byte so there is always a final write.
			final := pad(buf[:n])
			mode.CryptBlocks(final, final)
			_, err := w.Write(final)
			return err
		}
	})
}

// DecryptFile implements [FileEncryptor]. The ciphertext is streamed in
// chunks; the final block is held back until EOF so its padding can be
// validated and stripped. Like EncryptFile, the plaintext is written via a
// temporary file and renamed on success.
func (f *fileEncryptor) DecryptFile(inputPath, outputPath string, key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	defer in.Close()

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(in, iv); err != nil {
		return ErrCiphertextTooShort
	}

	return writeAtomic(outputPath, 0o600, func(w io.Writer) error {
		mode := cipher.NewCBCDecrypter(block, iv)
		buf := make([]byte, fileChunkSize)
		held := make([]byte, 0, aes.BlockSize)

		for {
			n, readErr := io.ReadFull(in, buf)
			if n > 0 {
				if n%aes.BlockSize != 0 {
					return ErrInvalidPadding
				}
				mode.CryptBlocks(buf[:n], buf[:n])
				if len(held) > 0 {
					if _, err := w.Write(held); err != nil {
						return err
					}
				}
				if _, err := w.Write(buf[:n-aes.BlockSize]); err != nil {
					return err
				}
				held = append(held[:0], buf[n-aes.BlockSize:n]...)
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				break
			}
			if readErr != nil {
				return fmt.Errorf("read input file: %w", readErr)
			}
		}

		if len(held) == 0 {
			return ErrCiphertextTooShort
		}

		final, err := unpad(held)
		if err != nil {
			return err
		}

		_, err = w.Write(final)
		return err
	})
}

// writeAtomic streams fn's output to path via a temporary sibling file and
// a rename. The temporary file is removed if any step fails, so outputPath
// is never left partially written.
func writeAtomic(path string, mode os.FileMode, fn func(io.Writer) error) error {
	tmp := path + ".tmp"

	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if err := fn(out); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write output file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize output file: %w", err)
	}

	return nil
}

// pad appends PKCS#7 padding: n bytes of value n, where n is the distance
// to the next block boundary. A plaintext already on a boundary gains one
// full block of padding.
func pad(plaintext []byte) []byte {
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	return append(plaintext, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad validates and strips PKCS#7 padding. Every malformed case collapses
// into ErrInvalidPadding.
func unpad(padded []byte) ([]byte, error) {
	if len(padded) == 0 || len(padded)%aes.BlockSize != 0 {
		return nil, ErrInvalidPadding
	}

	n := int(padded[len(padded)-1])
	if n == 0 || n > aes.BlockSize || n > len(padded) {
		return nil, ErrInvalidPadding
	}

	for _, b := range padded[len(padded)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}

	return padded[:len(padded)-n], nil
}
