// Package security signs and verifies webhook bodies and recognises captcha bypass tokens.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of a webhook body.
const SignatureHeader = "Webhook-Signature"

// captchaBypassPrefix precedes a company's private key in a captcha bypass token.
const captchaBypassPrefix = "mock-grecaptcha:"

// Sign returns the hex-encoded HMAC-SHA256 of body keyed with key.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook reports whether signature is the HMAC of body under any of the non-empty keys.
// Comparison is constant time; hex case is ignored.
func VerifyWebhook(body []byte, signature string, keys ...string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	ok := false
	for _, key := range keys {
		if key == "" {
			continue
		}
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write(body)
		if hmac.Equal(provided, mac.Sum(nil)) {
			ok = true
		}
	}
	return ok
}

// CaptchaBypassToken returns the token that skips captcha verification for privateKey where bypass is enabled.
func CaptchaBypassToken(privateKey string) string {
	return captchaBypassPrefix + privateKey
}

// IsCaptchaBypass reports whether response is the bypass token for privateKey.
func IsCaptchaBypass(response, privateKey string) bool {
	if privateKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(response), []byte(CaptchaBypassToken(privateKey))) == 1
}
