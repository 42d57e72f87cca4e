package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway key; never use it for anything real.
const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewRejectsBadKeys(t *testing.T) {
	cases := map[string]string{
		"not hex":   "zz",
		"too short": "abcd",
		"zero key":  "0000000000000000000000000000000000000000000000000000000000000000",
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(key)
			require.Error(t, err)
		})
	}
}

func TestAddressIsStable(t *testing.T) {
	a, err := New(testKey)
	require.NoError(t, err)
	b, err := New(testKey[2:])
	require.NoError(t, err)

	assert.Equal(t, a.Address(), b.Address())
	assert.Len(t, a.Address(), 42)
}

func TestSignRecoverRoundTrip(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)

	payload := []byte(`{"text":"hello","language":"en"}`)
	sig, ts, err := s.Sign(payload)
	require.NoError(t, err)
	assert.NotZero(t, ts)

	addr, err := Recover(payload, ts, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	// Tampering with the payload or the timestamp changes the recovered signer.
	other, err := Recover([]byte(`{"text":"hellO","language":"en"}`), ts, sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)

	other, err = Recover(payload, ts+1, sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestRecoverRejectsGarbage(t *testing.T) {
	_, err := Recover([]byte("x"), 1, "%%%")
	require.Error(t, err)

	_, err = Recover([]byte("x"), 1, "AAAA")
	require.Error(t, err)
}
