// Package identity provides the stable endpoint identifier and host facts
// reported to the collector.
package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const idFileName = "endpoint_id"

// Provider supplies the per-endpoint identifier.
type Provider interface {
	EndpointID() string
}

// Static is a fixed endpoint identifier.
type Static string

// EndpointID implements Provider.
func (s Static) EndpointID() string { return string(s) }

// Load returns override when set. Otherwise it reads the identifier persisted
// in dataDir, generating and persisting a new UUID on first start. The id
// names files under dataDir, so path separators and dot segments are
// rejected with ErrInvalidID.
func Load(dataDir, override string) (Static, error) {
	if id := strings.TrimSpace(override); id != "" {
		if err := validate(id); err != nil {
			return "", err
		}
		return Static(id), nil
	}

	path := filepath.Join(dataDir, idFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			if err := validate(id); err != nil {
				return "", err
			}
			return Static(id), nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: %w", ErrIdentity, err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIdentity, err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIdentity, err)
	}
	return Static(id), nil
}

func validate(id string) error {
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, os.PathSeparator) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
