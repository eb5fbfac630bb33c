// Package secrets implements the per-identity TOTP secret stores.
// Two forms exist: a plaintext YAML file for simple deployments and an
// encrypted store (Argon2id + AES-256-GCM) for shared hosts. Both are
// read-only to the authentication layer.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// usersFile is the on-disk YAML shape:
//
//	users:
//	  KN4XYZ: JBSWY3DPEHPK3PXP
type usersFile struct {
	Users map[string]string `yaml:"users"`
}

// FileStore serves TOTP secrets from a plaintext YAML users file.
type FileStore struct {
	path string

	mu    sync.RWMutex
	users map[string]string
}

// OpenFile loads a users file. Identities are normalized to uppercase.
func OpenFile(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Reload re-reads the users file, allowing new identities to be added
// without a restart.
func (fs *FileStore) Reload() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("reading users file: %w", err)
	}

	var uf usersFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return fmt.Errorf("parsing users file: %w", err)
	}

	users := make(map[string]string, len(uf.Users))
	for identity, secret := range uf.Users {
		users[strings.ToUpper(identity)] = secret
	}

	fs.mu.Lock()
	fs.users = users
	fs.mu.Unlock()
	return nil
}

// Secret returns the TOTP secret for an identity.
func (fs *FileStore) Secret(identity string) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	s, ok := fs.users[strings.ToUpper(identity)]
	return s, ok
}

// Identities returns the known identities, for provisioning tools.
func (fs *FileStore) Identities() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	ids := make([]string, 0, len(fs.users))
	for id := range fs.users {
		ids = append(ids, id)
	}
	return ids
}
