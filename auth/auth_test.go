package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownPlugins(t *testing.T) {
	names := []string{
		"mysql_native_password",
		"caching_sha2_password",
		"sha256_password",
		"mysql_clear_password",
		"client_ed25519",
	}
	for _, n := range names {
		p, err := Lookup(n)
		require.NoError(t, err, n)
		assert.Equal(t, n, p.Name())
	}
}

func TestLookupUnknownPlugin(t *testing.T) {
	_, err := Lookup("not_a_real_plugin")
	assert.Error(t, err)
}

func TestNativePasswordEmptyPassword(t *testing.T) {
	resp, err := NativePassword{}.InitialResponse("", []byte("01234567890123456789"))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestNativePasswordDeterministic(t *testing.T) {
	scramble := []byte("01234567890123456789")
	a, err := NativePassword{}.InitialResponse("secret", scramble)
	require.NoError(t, err)
	b, err := NativePassword{}.InitialResponse("secret", scramble)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 20)
}

func TestCachingSHA2FastAuthDone(t *testing.T) {
	resp, done, err := CachingSHA2Password{}.Continue([]byte{cachingSHA2FastAuthSuccess}, "secret", nil, nil)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, resp)
}

func TestCachingSHA2InitialResponseLength(t *testing.T) {
	scramble := []byte("01234567890123456789")
	resp, err := CachingSHA2Password{}.InitialResponse("secret", scramble)
	require.NoError(t, err)
	assert.Len(t, resp, 32)
}

func TestClearPasswordNulTerminated(t *testing.T) {
	resp, err := ClearPassword{}.InitialResponse("secret", nil)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("secret"), 0), resp)
}

func TestEd25519SignatureLength(t *testing.T) {
	sig, err := Ed25519Password{}.InitialResponse("secret", []byte("0123456789012345678901234567890x"))
	require.NoError(t, err)
	assert.Len(t, sig, 64)
}

func TestRegisterOverridesWithoutDisturbingExistingLookup(t *testing.T) {
	p, err := Lookup("mysql_native_password")
	require.NoError(t, err)
	assert.Equal(t, "mysql_native_password", p.Name())

	Register(NativePassword{})

	p2, err := Lookup("mysql_native_password")
	require.NoError(t, err)
	assert.Equal(t, "mysql_native_password", p2.Name())
}
