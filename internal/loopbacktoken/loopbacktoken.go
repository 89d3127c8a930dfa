// Package loopbacktoken mints and verifies short-lived HS256 tokens bound to
// a shared secret. It exists so a value already known to both sides of a
// loopback call (the facilitator's shared secret) can be presented as a
// token with a bounded lifetime rather than the raw secret itself, so a
// header captured off the loopback interface cannot be replayed past its
// expiry window.
package loopbacktoken

import (
	"fmt"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// DefaultTTL is the validity window of the token the gate mints for each
// verify/settle call it makes to the facilitator.
const DefaultTTL = time.Minute

const issuer = "x402gate-facilitator"

type claims struct {
	*jwt.Claims
}

// Sign issues an HS256 token bound to secret, valid for ttl starting now.
func Sign(secret string, ttl time.Duration, subject string) (string, error) {
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create jwt signer: %w", err)
	}

	now := time.Now()
	c := claims{
		Claims: &jwt.Claims{
			Issuer:    issuer,
			Subject:   subject,
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.Signed(sig).Claims(c).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize jwt: %w", err)
	}
	return token, nil
}

// Verify checks that token was signed with secret, carries the expected
// issuer, and has not expired.
func Verify(token, secret string) error {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return fmt.Errorf("malformed loopback token: %w", err)
	}

	var c claims
	c.Claims = &jwt.Claims{}
	if err := parsed.Claims([]byte(secret), &c); err != nil {
		return fmt.Errorf("invalid loopback token signature: %w", err)
	}

	return c.Claims.Validate(jwt.Expected{Issuer: issuer})
}
