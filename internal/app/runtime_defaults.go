package app

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MinJWTSecretLength is the shortest configured HMAC secret accepted, in bytes.
const MinJWTSecretLength = 32

const generatedSecretBytes = 48

// ApplyRuntimeDefaults fills secrets that have no safe static default. It returns the config keys
// that were generated so callers can warn about them without logging the values. A configured
// secret shorter than MinJWTSecretLength is rejected.
func ApplyRuntimeDefaults(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var generated []string

	secret := strings.TrimSpace(cfg.Auth.JWT.Secret)
	switch {
	case secret == "":
		key, err := randomKey(generatedSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = key
		generated = append(generated, "auth.jwt.secret")
	case len(secret) < MinJWTSecretLength:
		return nil, fmt.Errorf("auth.jwt.secret must be at least %d bytes", MinJWTSecretLength)
	}

	return generated, nil
}

func randomKey(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("key length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
