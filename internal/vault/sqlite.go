package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the encrypted secret store. The secret list is one sealed
// blob: individual rows would leak the secret count through timestamps.
const schema = `
CREATE TABLE IF NOT EXISTS vault_meta (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    salt        BLOB NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vault_blob (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    box         BLOB NOT NULL,
    updated_at  INTEGER NOT NULL
);
`

// Store is a Vault persisted to SQLite, encrypted at rest. Safe for
// concurrent use; every mutation is written through before returning.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	key     []byte
	secrets map[string]struct{}
	closed  bool
}

var _ Vault = (*Store)(nil)

// Open opens or creates the vault database at path and decrypts the
// secret list with the given passphrase. A wrong passphrase against an
// existing vault returns ErrBadPassphrase.
func Open(path, passphrase string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open vault database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply vault schema: %w", err)
	}

	s := &Store{db: db, secrets: make(map[string]struct{})}

	salt, err := s.loadOrCreateSalt()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.key = deriveKey(passphrase, salt)

	if err := s.load(); err != nil {
		Wipe(s.key)
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) loadOrCreateSalt() ([]byte, error) {
	var salt []byte
	err := s.db.QueryRow(`SELECT salt FROM vault_meta WHERE id = 1`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read vault meta: %w", err)
	}

	salt, err = newSalt()
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`INSERT INTO vault_meta (id, salt, created_at) VALUES (1, ?, ?)`,
		salt, time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("write vault meta: %w", err)
	}
	return salt, nil
}

// load decrypts the stored blob into the in-memory set. A missing blob
// means a fresh vault.
func (s *Store) load() error {
	var box []byte
	err := s.db.QueryRow(`SELECT box FROM vault_blob WHERE id = 1`).Scan(&box)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vault blob: %w", err)
	}

	plaintext, err := open(s.key, box)
	if err != nil {
		return err
	}
	defer Wipe(plaintext)

	var secrets []string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPassphrase, err)
	}
	for _, sec := range secrets {
		if sec != "" {
			s.secrets[sec] = struct{}{}
		}
	}
	return nil
}

// save encrypts the current set and writes it through. Caller holds the
// write lock.
func (s *Store) save() error {
	secrets := make([]string, 0, len(s.secrets))
	for sec := range s.secrets {
		secrets = append(secrets, sec)
	}
	sort.Strings(secrets)

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}
	defer Wipe(plaintext)

	box, err := seal(s.key, plaintext)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO vault_blob (id, box, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET box = excluded.box, updated_at = excluded.updated_at`,
		box, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("write vault blob: %w", err)
	}
	return nil
}

// Register adds a secret and persists the set.
func (s *Store) Register(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.secrets[secret]; ok {
		return nil
	}
	s.secrets[secret] = struct{}{}
	if err := s.save(); err != nil {
		delete(s.secrets, secret)
		return err
	}
	return nil
}

// Revoke removes a secret and persists the set.
func (s *Store) Revoke(secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.secrets[secret]; !ok {
		return nil
	}
	delete(s.secrets, secret)
	if err := s.save(); err != nil {
		s.secrets[secret] = struct{}{}
		return err
	}
	return nil
}

// List returns the secrets as a sorted copy.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.secrets))
	for sec := range s.secrets {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// Close wipes the key material and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	Wipe(s.key)
	s.secrets = make(map[string]struct{})
	return s.db.Close()
}
