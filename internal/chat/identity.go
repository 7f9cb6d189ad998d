package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// IdentityStore yields the stable per-device visitor identifier.
type IdentityStore interface {
	VisitorID() (string, error)
}

// FileIdentityStore persists the visitor token in a local file, the
// way the browser widget keeps it in localStorage: created once on
// first access, never regenerated.
type FileIdentityStore struct {
	Path string
}

// VisitorID reads the stored token, creating and persisting a new one
// if none exists yet.
func (f *FileIdentityStore) VisitorID() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read visitor id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return "", fmt.Errorf("create visitor id dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write visitor id: %w", err)
	}
	return id, nil
}
