package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	totpPeriod = 30 * time.Second
	totpDigits = 6
	// totpSkew allows one period of clock drift in either direction.
	totpSkew = 1
)

// GenerateTOTPSecret returns a base32 shared secret for authenticator apps.
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// TOTPCode computes the RFC 6238 code for the secret at the given time.
func TOTPCode(secret string, at time.Time) (string, error) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}

	counter := uint64(at.Unix()) / uint64(totpPeriod.Seconds())
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", code%1000000), nil
}

// VerifyTOTP checks a user-provided code against the secret, allowing bounded
// clock drift.
func VerifyTOTP(secret, code string, at time.Time) (bool, error) {
	if len(code) != totpDigits {
		return false, nil
	}
	for drift := -totpSkew; drift <= totpSkew; drift++ {
		expected, err := TOTPCode(secret, at.Add(time.Duration(drift)*totpPeriod))
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}
