// Package adminsig verifies the admin capability used to gate privileged
// /info sections and the admin API (spec §6's admin_key, SPEC_FULL §13's
// admin capability surface). Adapted from the teacher's SessionManager —
// same HMAC-JWT shape, HS256-signed via go-jose, but a different claim set:
// a capability token names which disallowed sections it unlocks rather
// than carrying a user identity.
package adminsig

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Claims are the claims embedded in an admin capability token.
type Claims struct {
	// Sections lists the /info sections this token unlocks. A single
	// entry "*" unlocks every disallowed section.
	Sections []string `json:"sections"`
}

// Manager issues and verifies admin capability tokens using HMAC-SHA256
// keyed by the configured admin_key.
type Manager struct {
	signingKey []byte
	maxAge     time.Duration
}

// NewManager builds a Manager keyed by adminKey. An empty adminKey is
// valid and simply means no admin capability can ever be issued or
// verified — the admin surface stays disabled.
func NewManager(adminKey string, maxAge time.Duration) *Manager {
	return &Manager{signingKey: []byte(adminKey), maxAge: maxAge}
}

// Enabled reports whether an admin key is configured at all.
func (m *Manager) Enabled() bool {
	return len(m.signingKey) > 0
}

// Issue signs a capability token for claims.
func (m *Manager) Issue(claims Claims) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("adminsig: no admin_key configured")
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: m.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(m.maxAge)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "portcullis-admin",
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing admin token: %w", err)
	}
	return token, nil
}

// Verify checks raw's signature and expiry and returns its claims.
func (m *Manager) Verify(raw string) (*Claims, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("adminsig: no admin_key configured")
	}

	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing admin token: %w", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(m.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying admin token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: "portcullis-admin",
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, fmt.Errorf("validating admin claims: %w", err)
	}

	return &custom, nil
}

// Unlocks reports whether claims grants access to section.
func (c *Claims) Unlocks(section string) bool {
	for _, s := range c.Sections {
		if s == "*" || s == section {
			return true
		}
	}
	return false
}
