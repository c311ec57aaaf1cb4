// Package vault manages the secret set used for detection.
//
// Secrets are plaintext only in volatile memory for the duration of a
// matching pass. The persistent backend keeps them encrypted at rest in
// SQLite with a passphrase-derived key. The vault is an injected
// dependency everywhere: the orchestrator takes the interface, and tests
// supply the in-memory implementation.
package vault

import (
	"errors"
	"sort"
	"sync"
)

// Errors surfaced by vault implementations.
var (
	ErrEmptySecret   = errors.New("vault: empty secret")
	ErrBadPassphrase = errors.New("vault: wrong passphrase or corrupt vault")
	ErrClosed        = errors.New("vault: closed")
)

// Vault is the secret set contract. List returns a copy; callers may
// mutate the returned slice freely.
type Vault interface {
	Register(secret string) error
	Revoke(secret string) error
	List() []string
}

// Memory is a volatile vault with set semantics. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	secrets map[string]struct{}
}

// NewMemory returns an empty in-memory vault, optionally seeded.
func NewMemory(secrets ...string) *Memory {
	m := &Memory{secrets: make(map[string]struct{}, len(secrets))}
	for _, s := range secrets {
		if s != "" {
			m.secrets[s] = struct{}{}
		}
	}
	return m
}

// Register adds a secret. Duplicates are a no-op.
func (m *Memory) Register(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[secret] = struct{}{}
	return nil
}

// Revoke removes a secret. Removing an absent secret is a no-op.
func (m *Memory) Revoke(secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, secret)
	return nil
}

// List returns the secrets as a sorted copy.
func (m *Memory) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.secrets))
	for s := range m.secrets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Static is a read-only vault over a fixed secret list, used for
// one-shot retroactive passes with ad-hoc search strings.
type Static []string

// Register is not supported on a static vault.
func (s Static) Register(string) error { return errors.New("vault: static vault is read-only") }

// Revoke is not supported on a static vault.
func (s Static) Revoke(string) error { return errors.New("vault: static vault is read-only") }

// List returns a copy of the fixed secret list.
func (s Static) List() []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Merged returns a static snapshot of a vault's secrets combined with
// extra ad-hoc strings, deduplicated.
func Merged(v Vault, extra ...string) Static {
	seen := make(map[string]struct{})
	var out Static
	for _, s := range v.List() {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
