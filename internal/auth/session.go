package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSessionTTL applies when no TTL is configured.
const DefaultSessionTTL = 12 * time.Hour

var (
	// ErrInvalidSession is returned for malformed or forged tokens.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired is returned for tokens past their expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Sessions issues and verifies stateless HMAC-SHA256 session tokens of the
// form base64url(adminID|expiryUnix).base64url(signature).
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions constructs a token issuer. The secret must not be empty.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue returns a signed token for adminID and its expiry.
func (s *Sessions) Issue(adminID string) (string, time.Time, error) {
	if adminID == "" || strings.Contains(adminID, "|") {
		return "", time.Time{}, fmt.Errorf("invalid admin id %q", adminID)
	}
	expires := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	payload := adminID + "|" + strconv.FormatInt(expires.Unix(), 10)
	enc := base64.RawURLEncoding
	token := enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString(s.sign([]byte(payload)))
	return token, expires, nil
}

// Verify checks the token signature and expiry and returns the admin id.
func (s *Sessions) Verify(token string) (string, error) {
	encPayload, encSig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidSession
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(encPayload)
	if err != nil {
		return "", ErrInvalidSession
	}
	sig, err := enc.DecodeString(encSig)
	if err != nil {
		return "", ErrInvalidSession
	}
	if subtle.ConstantTimeCompare(s.sign(payload), sig) != 1 {
		return "", ErrInvalidSession
	}
	adminID, rawExpiry, ok := strings.Cut(string(payload), "|")
	if !ok || adminID == "" {
		return "", ErrInvalidSession
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return "", ErrInvalidSession
	}
	if !s.now().Before(time.Unix(expiry, 0)) {
		return "", ErrSessionExpired
	}
	return adminID, nil
}

func (s *Sessions) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
