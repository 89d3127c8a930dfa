package facilitator

import (
	"crypto/subtle"
	"net/http"

	"github.com/x402gate/seller/internal/loopbacktoken"
)

// checkSharedSecret authenticates a request either by an exact, constant-time
// match against the configured shared secret, or by a valid loopback token
// minted from that same secret (see internal/loopbacktoken). The gate mints a
// fresh token per call rather than forwarding the raw secret, so a header
// captured off the loopback interface cannot be replayed past its expiry.
func checkSharedSecret(r *http.Request, secret string) bool {
	if token := r.Header.Get("X-Loopback-Token"); token != "" {
		return loopbacktoken.Verify(token, secret) == nil
	}

	got := r.Header.Get("X-API-Key")
	if got == "" {
		got = r.Header.Get("X-Facilitator-Key")
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
