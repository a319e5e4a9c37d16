// Package proof issues and checks the signed tokens that prove a visitor
// unlocked a password-protected project.
package proof

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Signer creates and validates project access tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a signer. A non-positive ttl falls back to 24 hours.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue returns a token scoped to projectID and its expiry.
// Format: <projectID>.<unix expiry>.<nonce>.<hex hmac>.
func (s *Signer) Issue(projectID string) (string, time.Time, error) {
	if projectID == "" {
		return "", time.Time{}, fmt.Errorf("project id required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	token := strings.Join([]string{projectID, ts, nonce, s.sign(projectID, ts, nonce)}, ".")
	return token, expiresAt, nil
}

// Verify checks the signature, the project scope and the expiry of token.
func (s *Signer) Verify(token, projectID string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return time.Time{}, fmt.Errorf("invalid token format")
	}
	id, ts, nonce, signature := parts[0], parts[1], parts[2], parts[3]

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid token expiry")
	}
	if !hmac.Equal([]byte(s.sign(id, ts, nonce)), []byte(signature)) {
		return time.Time{}, fmt.Errorf("invalid token signature")
	}
	if id != projectID {
		return time.Time{}, fmt.Errorf("token scoped to another project")
	}
	expiresAt := time.Unix(expUnix, 0).UTC()
	if s.now().After(expiresAt) {
		return time.Time{}, fmt.Errorf("token expired")
	}
	return expiresAt, nil
}

// Hash returns the digest under which a token is recorded server side.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Signer) sign(projectID, ts, nonce string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(projectID + "|" + ts + "|" + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}
