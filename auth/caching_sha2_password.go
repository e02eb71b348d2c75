package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Fast-auth/full-auth result bytes the server sends via AuthMoreData, per
// spec §4.4.
const (
	cachingSHA2FastAuthSuccess byte = 3
	cachingSHA2FullAuthStart   byte = 4
)

// CachingSHA2Password implements caching_sha2_password, per spec §4.4.
// Grounded on the scrambleSHA256Password/encryptPassword algorithm used by
// the retrieved go-sql-driver/mysql auth source: SHA256-based XOR for the
// fast-auth path, RSA-OAEP public-key encryption for the full-auth path
// when the server's cache entry has expired.
type CachingSHA2Password struct{}

func (CachingSHA2Password) Name() string { return "caching_sha2_password" }

// InitialResponse computes SHA256(password) XOR SHA256(SHA256(SHA256(password)), scramble).
func (CachingSHA2Password) InitialResponse(password string, scramble []byte) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	return scrambleSHA256(password, scramble), nil
}

func scrambleSHA256(password string, scramble []byte) []byte {
	stage1 := sha256.Sum256([]byte(password))
	stage2 := sha256.Sum256(stage1[:])

	h := sha256.New()
	h.Write(stage2[:])
	h.Write(scramble)
	message := h.Sum(nil)

	out := make([]byte, len(stage1))
	for i := range out {
		out[i] = stage1[i] ^ message[i]
	}
	return out
}

// Continue handles the full-auth round trip: on cachingSHA2FullAuthStart,
// it requests (or reuses) the server's RSA public key and returns the
// password encrypted with OAEP, XORed against the scramble first per the
// protocol's obfuscation step; on cachingSHA2FastAuthSuccess there is
// nothing more to send.
func (CachingSHA2Password) Continue(data []byte, password string, scramble []byte, serverPubKey func() ([]byte, error)) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, true, nil
	}
	switch data[0] {
	case cachingSHA2FastAuthSuccess:
		return nil, true, nil
	case cachingSHA2FullAuthStart:
		pemBytes, err := serverPubKey()
		if err != nil {
			return nil, false, errkind.NewAuthError("fetching caching_sha2_password public key", err)
		}
		enc, err := encryptPasswordOAEP(password, scramble, pemBytes)
		if err != nil {
			return nil, false, errkind.NewAuthError("encrypting caching_sha2_password response", err)
		}
		return enc, true, nil
	default:
		// The raw bytes are themselves the server's RSA public key (sent
		// unprompted in response to a public-key request), per the
		// retrieved reference implementation.
		enc, err := encryptPasswordOAEP(password, scramble, data)
		if err != nil {
			return nil, false, errkind.NewAuthError("encrypting caching_sha2_password response", err)
		}
		return enc, true, nil
	}
}

// encryptPasswordOAEP XORs the NUL-terminated password with a repeated
// scramble, then encrypts it with the server's RSA public key using OAEP,
// matching the retrieved go-sql-driver/mysql reference behavior.
func encryptPasswordOAEP(password string, scramble []byte, pemBytes []byte) ([]byte, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "invalid PEM public key", nil)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "server public key is not RSA", nil)
	}

	plain := make([]byte, len(password)+1)
	copy(plain, password)
	for i := range plain {
		plain[i] ^= scramble[i%len(scramble)]
	}

	return rsa.EncryptOAEP(sha1.New(), rand.Reader, rsaKey, plain, nil)
}
