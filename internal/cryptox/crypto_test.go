package cryptox

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func TestDeriveKey_Deterministic(t *testing.T) {
	k1 := DeriveKey([]byte("secret-password"), []byte("fixed-salt"))
	k2 := DeriveKey([]byte("secret-password"), []byte("fixed-salt"))

	if !bytes.Equal(k1, k2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(k1) != KeySize {
		t.Errorf("expected %d byte key, got %d", KeySize, len(k1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	k1 := DeriveKey([]byte("secret-password"), []byte("salt-1"))
	k2 := DeriveKey([]byte("secret-password"), []byte("salt-2"))

	if bytes.Equal(k1, k2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestHashNonce_KnownVector(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashNonce("abc"))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	in := record{Access: "a-token", Refresh: "r-token"}

	sealed, err := Seal(in, key)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "a-token")

	var out record
	require.NoError(t, Open(sealed, key, &out))
	assert.Equal(t, in, out)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	a, err := Seal(record{Access: "x"}, key)
	require.NoError(t, err)
	b, err := Seal(record{Access: "x"}, key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	sealed, err := Seal(record{Access: "x"}, common.GenerateRandByteArray(KeySize))
	require.NoError(t, err)

	var out record
	require.Error(t, Open(sealed, common.GenerateRandByteArray(KeySize), &out))
}

func TestOpen_TamperedFails(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	sealed, err := Seal(record{Access: "x"}, key)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff

	var out record
	require.Error(t, Open(sealed, key, &out))
}

func TestOpen_TooShort(t *testing.T) {
	var out record
	require.ErrorIs(t, Open([]byte{1, 2, 3}, common.GenerateRandByteArray(KeySize), &out), ErrSealedTooShort)
}

func TestSeal_BadKeyLength(t *testing.T) {
	_, err := Seal(record{}, []byte("short"))
	require.Error(t, err)
}
