package files

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// randomFilename builds a collision-resistant filename from a 16-byte
// random token, keeping only the extension of the client-supplied name so
// the original name never leaks.
func randomFilename(originalName string) (string, error) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return "", fmt.Errorf("failed to generate filename token: %w", err)
	}
	return hex.EncodeToString(token) + filepath.Ext(originalName), nil
}
