package quarantine

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// quarantineExt marks encrypted blobs in the quarantine directory.
const quarantineExt = ".quar"

// hashPrefixLen is how much of the content hash goes into the blob name.
// Enough to make collisions under one timestamp implausible, short enough
// to keep names readable.
const hashPrefixLen = 8

// quarantineFileName builds the ciphertext file name:
// <unix-timestamp>_<hash-prefix>_<sanitized-basename>.quar
func quarantineFileName(ts time.Time, sha256Hash, originalPath string) string {
	prefix := sha256Hash
	if len(prefix) > hashPrefixLen {
		prefix = prefix[:hashPrefixLen]
	}
	return fmt.Sprintf("%d_%s_%s%s", ts.Unix(), prefix, sanitizeBaseName(originalPath), quarantineExt)
}

// sanitizeBaseName reduces an arbitrary path to a safe file name component.
// Separators, control characters and other shell-hostile bytes are replaced
// so the ciphertext name can never traverse out of the quarantine directory.
func sanitizeBaseName(path string) string {
	base := filepath.Base(path)

	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
