package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/redlogic/internal/pkg/security"
)

// KeyPrefix starts every issued API key.
const KeyPrefix = "rlk_"

// lookupLen is how much of a key is stored in clear to find its hash.
const lookupLen = len(KeyPrefix) + 8

// APIKey is a machine access key. Only its bcrypt hash is kept.
type APIKey struct {
	ID         string `json:"id"` // UUID
	Name       string `json:"name"`
	Lookup     string `json:"lookup"`
	Hash       string `json:"hash"`
	CreatedAt  int64  `json:"created_at"`
	LastUsedAt int64  `json:"last_used_at,omitempty"`
}

// MetaData is the persisted container.
type MetaData struct {
	Keys []APIKey `json:"keys"`
}

// Store handles the sealed persistence and in-memory management of API keys.
type Store struct {
	filePath string
	sealer   *security.Sealer
	mu       sync.RWMutex
	data     *MetaData

	// Cost is the bcrypt cost for new keys.
	Cost int
}

// NewStore creates a new key store.
func NewStore(filePath string, sealer *security.Sealer) *Store {
	return &Store{
		filePath: filePath,
		sealer:   sealer,
		data:     &MetaData{Keys: make([]APIKey, 0)},
		Cost:     bcrypt.DefaultCost,
	}
}

// Load reads keys from disk. A missing file is an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(sealed) == 0 {
		return nil
	}

	// No fallback to plain JSON.
	plain, err := s.sealer.Decrypt(sealed)
	if err != nil {
		return errors.New("failed to decrypt key store (invalid key or corrupted file): " + err.Error())
	}

	data := &MetaData{}
	if err := json.Unmarshal(plain, data); err != nil {
		return fmt.Errorf("failed to parse key store: %w", err)
	}
	s.data = data
	return nil
}

// Save writes keys to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	jsonData, err := json.Marshal(s.data)
	if err != nil {
		return err
	}

	sealed, err := s.sealer.Encrypt(jsonData)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// AddKey issues a key named name and returns its secret. The secret is
// not recoverable afterwards.
func (s *Store) AddKey(name string) (string, APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", APIKey{}, errors.New("key name required")
	}

	raw, err := security.RandomToken(24)
	if err != nil {
		return "", APIKey{}, err
	}
	secret := KeyPrefix + raw

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.Cost)
	if err != nil {
		return "", APIKey{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.data.Keys {
		if strings.EqualFold(k.Name, name) {
			return "", APIKey{}, os.ErrExist
		}
	}

	key := APIKey{
		ID:        uuid.NewString(),
		Name:      name,
		Lookup:    secret[:lookupLen],
		Hash:      string(hash),
		CreatedAt: time.Now().Unix(),
	}
	s.data.Keys = append(s.data.Keys, key)
	if err := s.saveLocked(); err != nil {
		s.data.Keys = s.data.Keys[:len(s.data.Keys)-1]
		return "", APIKey{}, err
	}
	return secret, key, nil
}

// DeleteKey removes a key by ID or name.
func (s *Store) DeleteKey(idOrName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, k := range s.data.Keys {
		if k.ID == idOrName || strings.EqualFold(k.Name, idOrName) {
			prev := s.data.Keys
			keys := make([]APIKey, 0, len(prev)-1)
			keys = append(keys, prev[:i]...)
			s.data.Keys = append(keys, prev[i+1:]...)
			if err := s.saveLocked(); err != nil {
				s.data.Keys = prev
				return err
			}
			return nil
		}
	}
	return os.ErrNotExist
}

// ListKeys returns the keys sorted by name, without hashes.
func (s *Store) ListKeys() []APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]APIKey, len(s.data.Keys))
	copy(out, s.data.Keys)
	for i := range out {
		out[i].Hash = ""
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Keys)
}

// Authenticate checks a presented secret and records its use in memory.
func (s *Store) Authenticate(secret string) (APIKey, bool) {
	if len(secret) < lookupLen || !strings.HasPrefix(secret, KeyPrefix) {
		return APIKey{}, false
	}
	lookup := secret[:lookupLen]

	s.mu.RLock()
	var candidates []APIKey
	for _, k := range s.data.Keys {
		if k.Lookup == lookup {
			candidates = append(candidates, k)
		}
	}
	s.mu.RUnlock()

	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(secret)) == nil {
			s.touch(k.ID)
			k.Hash = ""
			return k, true
		}
	}
	return APIKey{}, false
}

func (s *Store) touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Keys {
		if s.data.Keys[i].ID == id {
			s.data.Keys[i].LastUsedAt = time.Now().Unix()
			return
		}
	}
}
