package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Company is a tenant that receives enquiries. PublicKey routes public requests; PrivateKey signs
// webhooks and authenticates upstream calls and must never be exposed.
type Company struct {
	ID         string
	Name       string
	PublicKey  string
	PrivateKey string
	CreatedAt  time.Time
}

// keyBytes yields 20 hex characters per key.
const keyBytes = 10

// Validate validates the company for persistence. Returns an error describing the first validation failure.
func (c *Company) Validate() error {
	if len(c.Name) < 4 || len(c.Name) > 63 {
		return errors.New("name must be between 4 and 63 characters")
	}
	if c.PublicKey == "" || c.PrivateKey == "" {
		return errors.New("public and private keys are required")
	}
	return nil
}

// GenerateKeys sets fresh random public and private keys.
func (c *Company) GenerateKeys() error {
	pub, err := tokenHex(keyBytes)
	if err != nil {
		return err
	}
	priv, err := tokenHex(keyBytes)
	if err != nil {
		return err
	}
	c.PublicKey, c.PrivateKey = pub, priv
	return nil
}

func tokenHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
