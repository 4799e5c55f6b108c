// Package fileid derives stable document ids for files picked up from a drop folder.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

const prefix = "drop-"

// FromPath returns the document id for path. The path is made absolute and cleaned first, so
// every spelling of the same file maps to one id and a rewritten file replaces its document.
func FromPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	hash := sha256.Sum256([]byte(filepath.Clean(abs)))
	return prefix + hex.EncodeToString(hash[:16]), nil
}

// IsDropID reports whether id was produced by FromPath.
func IsDropID(id string) bool {
	return strings.HasPrefix(id, prefix) && len(id) == len(prefix)+32
}
