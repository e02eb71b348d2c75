package auth

import (
	"crypto/sha1"
)

// NativePassword implements mysql_native_password, per spec §4.4.
// Grounded on the teacher's server/auth/password_validator.go
// MySQLNativePasswordValidator.calculateAuthResponse, which computes the
// same SHA1-based scramble for verifying a response; this inverts that
// into the client-side computation of the response itself.
type NativePassword struct{}

func (NativePassword) Name() string { return "mysql_native_password" }

// InitialResponse computes SHA1(password) XOR SHA1(scramble + SHA1(SHA1(password))).
func (NativePassword) InitialResponse(password string, scramble []byte) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	stage1 := sha1Sum([]byte(password))
	stage2 := sha1Sum(stage1[:])

	h := sha1.New()
	h.Write(scramble)
	h.Write(stage2[:])
	message := h.Sum(nil)

	out := make([]byte, len(stage1))
	for i := range out {
		out[i] = stage1[i] ^ message[i]
	}
	return out, nil
}

func sha1Sum(b []byte) [sha1.Size]byte {
	return sha1.Sum(b)
}
