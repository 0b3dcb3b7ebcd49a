// Package sessiontoken issues and verifies the short-lived credentials that
// querying clients present to the dataset endpoint. A token is an HMAC-SHA256
// over its own expiry timestamp, so the server stays stateless: no token
// storage, verification needs only the shared secret and the clock.
package sessiontoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session token expired")
)

// Issuer creates and checks session tokens with one shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// New creates an Issuer. ttl bounds how long issued tokens stay valid.
func New(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a token valid until now+ttl, formatted as
// "<unix expiry>.<hex mac>".
func (i *Issuer) Issue(now time.Time) string {
	expiry := strconv.FormatInt(now.Add(i.ttl).Unix(), 10)
	return expiry + "." + i.sign(expiry)
}

// Verify checks token integrity and expiry against now. The MAC comparison
// is constant-time.
func (i *Issuer) Verify(token string, now time.Time) error {
	expiry, mac, ok := strings.Cut(token, ".")
	if !ok {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(mac), []byte(i.sign(expiry))) {
		return ErrInvalidToken
	}
	ts, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return ErrInvalidToken
	}
	if now.Unix() > ts {
		return ErrExpiredToken
	}
	return nil
}

func (i *Issuer) sign(payload string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
