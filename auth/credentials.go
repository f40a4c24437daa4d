package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/hupe1980/searchagent/logging"
)

// usersFile is the on-disk layout shared by the JSON and TOML formats:
//
//	{"users": [{"email": "a@b.c", "password": "..."}]}
//
//	[[users]]
//	email = "a@b.c"
//	password = "..."
type usersFile struct {
	Users []userEntry `json:"users" toml:"users"`
}

type userEntry struct {
	Email    string `json:"email" toml:"email"`
	Password string `json:"password" toml:"password"`
}

// CredentialStoreOptions configures a CredentialStore.
type CredentialStoreOptions struct {
	Logger logging.Logger
}

// CredentialStore maps lower-cased identities to secrets. The mapping is read
// from a file on Load or Reload, or lazily on the first Verify. A missing file
// yields an empty set.
type CredentialStore struct {
	path   string
	logger logging.Logger

	mu      sync.RWMutex
	loaded  bool
	secrets map[string]string
}

// NewCredentialStore creates a store backed by path. Files ending in .toml are
// decoded as TOML, anything else as JSON.
func NewCredentialStore(path string, optFns ...func(o *CredentialStoreOptions)) *CredentialStore {
	opts := CredentialStoreOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &CredentialStore{
		path:    path,
		logger:  logging.OrNoOp(opts.Logger),
		secrets: map[string]string{},
	}
}

// NewStaticCredentialStore creates an already loaded store from an in-memory
// mapping. Useful for tests and embedding.
func NewStaticCredentialStore(secrets map[string]string) *CredentialStore {
	s := &CredentialStore{logger: logging.NoOpLogger{}, loaded: true, secrets: make(map[string]string, len(secrets))}
	for id, secret := range secrets {
		if id == "" || secret == "" {
			continue
		}
		s.secrets[strings.ToLower(id)] = secret
	}
	return s
}

// Load reads the credential file if it has not been read yet.
func (s *CredentialStore) Load() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Reload()
}

// Reload re-reads the credential file and atomically replaces the mapping.
// On error the previous mapping is kept.
func (s *CredentialStore) Reload() error {
	if s.path == "" {
		s.mu.Lock()
		s.loaded = true
		s.mu.Unlock()
		return nil
	}

	secrets, err := readCredentials(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.secrets = secrets
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("auth.credentials.loaded", "path", s.path, "identities", len(secrets))
	return nil
}

// Verify reports whether identity (case-insensitive) is registered with
// exactly secret.
func (s *CredentialStore) Verify(identity, secret string) (bool, error) {
	if err := s.Load(); err != nil {
		return false, err
	}

	s.mu.RLock()
	stored, ok := s.secrets[strings.ToLower(identity)]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	// Compare digests so the comparison time does not depend on length.
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1, nil
}

// Identities lists the registered identities in sorted order.
func (s *CredentialStore) Identities() ([]string, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.secrets))
	for id := range s.secrets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func readCredentials(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("auth: read credentials %s: %w", path, err)
	}

	var file usersFile
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("auth: decode credentials %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("auth: decode credentials %s: %w", path, err)
	}

	secrets := make(map[string]string, len(file.Users))
	for _, u := range file.Users {
		if u.Email == "" || u.Password == "" {
			continue
		}
		secrets[strings.ToLower(u.Email)] = u.Password
	}
	return secrets, nil
}
