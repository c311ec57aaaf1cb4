package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetSemantics(t *testing.T) {
	v := NewMemory()

	require.NoError(t, v.Register("hunter2"))
	require.NoError(t, v.Register("hunter2"))
	require.NoError(t, v.Register("abc123"))

	assert.Equal(t, []string{"abc123", "hunter2"}, v.List())

	require.NoError(t, v.Revoke("hunter2"))
	require.NoError(t, v.Revoke("hunter2"))
	assert.Equal(t, []string{"abc123"}, v.List())
}

func TestMemory_RejectsEmptySecret(t *testing.T) {
	v := NewMemory()
	assert.ErrorIs(t, v.Register(""), ErrEmptySecret)
}

func TestMemory_ListReturnsCopy(t *testing.T) {
	v := NewMemory("hunter2")

	list := v.List()
	list[0] = "mutated"

	assert.Equal(t, []string{"hunter2"}, v.List())
}

func TestStatic_ReadOnly(t *testing.T) {
	v := Static{"a", "b"}

	assert.Error(t, v.Register("c"))
	assert.Error(t, v.Revoke("a"))
	assert.Equal(t, []string{"a", "b"}, v.List())
}

func TestMerged_DeduplicatesExtras(t *testing.T) {
	v := NewMemory("hunter2", "abc123")

	merged := Merged(v, "hunter2", "extra", "", "extra")

	assert.ElementsMatch(t, []string{"abc123", "hunter2", "extra"}, merged.List())
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := Open(path, "correct horse")
	require.NoError(t, err)
	require.NoError(t, s.Register("hunter2"))
	require.NoError(t, s.Register("abc123"))
	require.NoError(t, s.Close())

	s2, err := Open(path, "correct horse")
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, []string{"abc123", "hunter2"}, s2.List())
}

func TestStore_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := Open(path, "correct horse")
	require.NoError(t, err)
	require.NoError(t, s.Register("hunter2"))
	require.NoError(t, s.Close())

	_, err = Open(path, "battery staple")
	assert.ErrorIs(t, err, ErrBadPassphrase)
}

func TestStore_RevokePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := Open(path, "pw")
	require.NoError(t, err)
	require.NoError(t, s.Register("hunter2"))
	require.NoError(t, s.Register("abc123"))
	require.NoError(t, s.Revoke("hunter2"))
	require.NoError(t, s.Close())

	s2, err := Open(path, "pw")
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, []string{"abc123"}, s2.List())
}

func TestStore_ClosedOperationsFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := Open(path, "pw")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Register("x"), ErrClosed)
	assert.ErrorIs(t, s.Revoke("x"), ErrClosed)
}

func TestSealOpen(t *testing.T) {
	key := deriveKey("passphrase", []byte("0123456789abcdef"))

	box, err := seal(key, []byte("plaintext"))
	require.NoError(t, err)
	assert.NotContains(t, string(box), "plaintext")

	got, err := open(key, box)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext"), got)

	other := deriveKey("different", []byte("0123456789abcdef"))
	_, err = open(other, box)
	assert.ErrorIs(t, err, ErrBadPassphrase)
}
