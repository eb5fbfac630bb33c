package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters: m=64MB, t=3, p=4
	argonMemory  = 64 * 1024
	argonTime    = 3
	argonThreads = 4
	argonKeyLen  = 32

	saltLen  = 32
	nonceLen = 12 // AES-256-GCM standard nonce size
)

// entry is a single encrypted secret in the store.
type entry struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// storeFile is the on-disk representation.
type storeFile struct {
	Salt    []byte            `json:"salt"`
	Entries map[string]*entry `json:"entries"` // uppercase identity -> encrypted secret
}

// EncryptedStore keeps TOTP secrets sealed with a key derived from an
// operator passphrase. The master key lives only in memory.
type EncryptedStore struct {
	mu        sync.RWMutex
	masterKey []byte
	salt      []byte
	entries   map[string]*entry
	path      string
}

// deriveKey derives a 256-bit master key from a passphrase and salt using Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		argonTime,
		argonMemory,
		argonThreads,
		argonKeyLen,
	)
}

// CreateEncrypted initializes a new encrypted store with a fresh salt.
func CreateEncrypted(path, passphrase string) (*EncryptedStore, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	es := &EncryptedStore{
		masterKey: deriveKey(passphrase, salt),
		salt:      salt,
		entries:   make(map[string]*entry),
		path:      path,
	}
	if err := es.Save(); err != nil {
		return nil, err
	}
	return es, nil
}

// OpenEncrypted loads an existing store and unlocks it with the passphrase.
func OpenEncrypted(path, passphrase string) (*EncryptedStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets store: %w", err)
	}

	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing secrets store: %w", err)
	}

	mk := deriveKey(passphrase, sf.Salt)
	es := &EncryptedStore{
		masterKey: mk,
		salt:      sf.Salt,
		entries:   sf.Entries,
		path:      path,
	}
	if es.entries == nil {
		es.entries = make(map[string]*entry)
	}

	// Validate the passphrase by decrypting one entry, if any exist.
	for identity := range es.entries {
		if _, ok := es.Secret(identity); !ok {
			for i := range mk {
				mk[i] = 0
			}
			return nil, fmt.Errorf("incorrect passphrase or corrupted secrets store")
		}
		break
	}

	return es, nil
}

// Put encrypts and stores a secret for an identity.
func (es *EncryptedStore) Put(identity, secret string) error {
	identity = strings.ToUpper(identity)

	es.mu.Lock()
	defer es.mu.Unlock()

	block, err := aes.NewCipher(es.masterKey)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	// Identity as AAD binds the ciphertext to its owner.
	ciphertext := gcm.Seal(nil, nonce, []byte(secret), []byte(identity))

	es.entries[identity] = &entry{
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	return nil
}

// Secret decrypts and returns the TOTP secret for an identity.
func (es *EncryptedStore) Secret(identity string) (string, bool) {
	identity = strings.ToUpper(identity)

	es.mu.RLock()
	defer es.mu.RUnlock()

	e, ok := es.entries[identity]
	if !ok {
		return "", false
	}

	block, err := aes.NewCipher(es.masterKey)
	if err != nil {
		return "", false
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", false
	}

	plaintext, err := gcm.Open(nil, e.Nonce, e.Ciphertext, []byte(identity))
	if err != nil {
		return "", false
	}
	return string(plaintext), true
}

// Identities returns the known identities.
func (es *EncryptedStore) Identities() []string {
	es.mu.RLock()
	defer es.mu.RUnlock()
	ids := make([]string, 0, len(es.entries))
	for id := range es.entries {
		ids = append(ids, id)
	}
	return ids
}

// Save persists the store to disk.
func (es *EncryptedStore) Save() error {
	es.mu.Lock()
	defer es.mu.Unlock()

	data, err := json.Marshal(storeFile{
		Salt:    es.salt,
		Entries: es.entries,
	})
	if err != nil {
		return fmt.Errorf("marshaling secrets store: %w", err)
	}
	if err := os.WriteFile(es.path, data, 0600); err != nil {
		return fmt.Errorf("writing secrets store: %w", err)
	}
	return nil
}

// Close zeroes the master key.
func (es *EncryptedStore) Close() {
	es.mu.Lock()
	defer es.mu.Unlock()
	for i := range es.masterKey {
		es.masterKey[i] = 0
	}
}
