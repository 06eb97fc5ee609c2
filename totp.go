package authgate

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpSecretBytes = 20

// totpQRSize is the pixel edge of the enrollment QR image.
const totpQRSize = 200

type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	return &totpManager{config: cfg}
}

// GenerateSecret returns a fresh random secret as raw bytes and base32.
func (m *totpManager) GenerateSecret() ([]byte, string, error) {
	if m == nil {
		return nil, "", ErrEngineNotReady
	}
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// ProvisionKey builds the otpauth:// enrollment key authenticator apps
// scan or import. The secret is the raw key material; the library
// base32-encodes it into the URI.
func (m *totpManager) ProvisionKey(secret []byte, account string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: account,
		Secret:      secret,
		Period:      uint(m.config.Period),
		Digits:      otp.Digits(m.config.Digits),
		Algorithm:   m.algorithm(),
	})
}

// enrollmentQR renders the key as a PNG for apps that enroll by camera.
func enrollmentQR(key *otp.Key, size int) ([]byte, error) {
	img, err := key.Image(size, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// VerifyCode checks a submitted code against the secret across the configured
// skew window. On success it returns the matched time-step counter so callers
// can refuse replays of the same code within its window.
func (m *totpManager) VerifyCode(secretBase32, code string, now time.Time) (bool, int64, error) {
	if m == nil {
		return false, 0, ErrEngineNotReady
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumericString(trimmed) {
		return false, 0, nil
	}
	if secretBase32 == "" {
		return false, 0, errors.New("empty totp secret")
	}

	opts := totp.ValidateOpts{
		Period:    uint(m.config.Period),
		Skew:      0,
		Digits:    otp.Digits(m.config.Digits),
		Algorithm: m.algorithm(),
	}

	period := int64(m.config.Period)
	baseCounter := now.Unix() / period
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := totp.GenerateCodeCustom(secretBase32, time.Unix(counter*period, 0), opts)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}

	return false, 0, nil
}

func (m *totpManager) algorithm() otp.Algorithm {
	switch strings.ToUpper(m.config.Algorithm) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
