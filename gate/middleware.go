// Package gate wraps a protected http.Handler with x402 payment gating: it
// challenges unpaid requests with a 402, verifies and settles a signed
// authorization against the facilitator, and only then invokes the handler.
package gate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/encoding"
	"github.com/x402gate/seller/paymentlog"
)

// contextKey avoids collisions in the request context.
type contextKey string

// SettlementContextKey stores the settlement record a protected handler can
// read to log or display a receipt.
const SettlementContextKey = contextKey("x402_settlement")

// Config configures New.
type Config struct {
	Facilitator  *FacilitatorClient
	Requirements []x402.PaymentRequirements

	// PaymentLog, if set, records a row for every successful settlement.
	// A nil PaymentLog simply skips logging.
	PaymentLog *paymentlog.Logger
}

// Option configures the middleware New builds, beyond Config.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger the middleware reports gate decisions to.
// Unset defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// errorBody is the machine-readable body every non-2xx gate response carries.
// X402Version/Error are only populated on the 402-no-payment response, where
// they accompany the bare PaymentRequirements array in the PAYMENT-REQUIRED
// header rather than being folded into it.
type errorBody struct {
	Code        string `json:"code"`
	Reason      string `json:"reason,omitempty"`
	X402Version int    `json:"x402Version,omitempty"`
	Error       string `json:"error,omitempty"`
}

const (
	codePaymentRequired = "X402_PAYMENT_REQUIRED"
	codeInvalidPayload  = "X402_INVALID_PAYLOAD"
	codeVerifyFailed    = "X402_VERIFY_FAILED"
	codeSettleFailed    = "X402_SETTLE_FAILED"
)

// New returns a chi-style middleware (func(http.Handler) http.Handler)
// implementing the six-step payment gate. Requirements are given a concrete
// Resource URL per-request, since the same handler may be reachable at more
// than one path.
func New(cfg Config, opts ...Option) func(http.Handler) http.Handler {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requirements := withResource(cfg.Requirements, r)

			// 1. read PAYMENT-SIGNATURE
			signatureHeader := r.Header.Get("Payment-Signature")
			if signatureHeader == "" {
				// 2. absent -> 402 with the full requirements array
				respondPaymentRequired(w, requirements)
				return
			}

			// 3. decode; malformed -> 400
			payload, err := encoding.DecodePayment(signatureHeader)
			if err != nil {
				logger.Warn("gate: malformed payment payload", "error", err)
				respondError(w, http.StatusBadRequest, codeInvalidPayload, err.Error())
				return
			}

			requirement, err := x402.FindMatchingRequirement(payload, requirements)
			if err != nil {
				respondPaymentRequired(w, requirements)
				return
			}

			// 4. verify
			verifyResult, err := cfg.Facilitator.Verify(r.Context(), payload, *requirement)
			if err != nil {
				logger.Error("gate: verify call failed", "error", err)
				respondError(w, http.StatusInternalServerError, codeSettleFailed, "facilitator unavailable")
				return
			}
			if !verifyResult.Valid {
				logger.Warn("gate: payment verification failed", "reason", verifyResult.Reason)
				respondError(w, http.StatusPaymentRequired, codeVerifyFailed, verifyResult.Reason)
				return
			}

			// 5. settle
			settlement, err := cfg.Facilitator.Settle(r.Context(), payload, *requirement)
			if err != nil {
				logger.Error("gate: settle call failed", "error", err)
				respondError(w, http.StatusInternalServerError, codeSettleFailed, err.Error())
				return
			}
			if !settlement.Success {
				logger.Warn("gate: settlement unsuccessful", "reason", settlement.ErrorReason)
				respondError(w, http.StatusInternalServerError, codeSettleFailed, settlement.ErrorReason)
				return
			}

			// 6. attach PAYMENT-RESPONSE, serve
			if encoded, err := encoding.EncodeSettlement(settlement); err == nil {
				w.Header().Set("Payment-Response", encoded)
			} else {
				logger.Warn("gate: failed to encode settlement header", "error", err)
			}

			logger.Info("gate: payment settled", "payer", settlement.Payer, "transaction", settlement.Transaction)
			if cfg.PaymentLog != nil {
				cfg.PaymentLog.Record(r.Context(), paymentlog.Entry{
					Endpoint: r.URL.Path,
					Payer:    settlement.Payer,
					Asset:    requirement.Asset,
					Amount:   requirement.Amount,
					TxHash:   settlement.Transaction,
				})
			}

			ctx := context.WithValue(r.Context(), SettlementContextKey, settlement)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// withResource stamps each requirement's Resource field with the request's
// absolute URL, since PaymentRequirements are configured once per handler
// but the resource identifier is per-request.
func withResource(requirements []x402.PaymentRequirements, r *http.Request) []x402.PaymentRequirements {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	resourceURL := scheme + "://" + r.Host + r.URL.RequestURI()

	out := make([]x402.PaymentRequirements, len(requirements))
	for i, req := range requirements {
		out[i] = req
		out[i].Resource = resourceURL
	}
	return out
}

func respondPaymentRequired(w http.ResponseWriter, requirements []x402.PaymentRequirements) {
	encoded, err := encoding.EncodeRequirements(requirements)
	if err != nil {
		http.Error(w, "failed to build payment requirements", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Payment-Required", encoded)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(errorBody{
		Code:        codePaymentRequired,
		Reason:      "no PAYMENT-SIGNATURE header",
		X402Version: x402.Version,
		Error:       "payment required",
	})
}

func respondError(w http.ResponseWriter, status int, code, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Code: code, Reason: reason})
}
