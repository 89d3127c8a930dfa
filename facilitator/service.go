// Package facilitator implements the local, loopback-only HTTP service that
// performs off-chain signature verification and on-chain settlement
// broadcast on behalf of the payment gate.
package facilitator

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/chain"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Service wires the Verifier, Settler, and demo helper behind gin's router.
type Service struct {
	cfg      Config
	chain    *chain.Client
	verifier *Verifier
	settler  *Settler
	engine   *gin.Engine
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger a Service reports request outcomes to. Unset
// defaults to slog.Default(). It is also passed down to the underlying
// chain.Client via chain.WithLogger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.log = logger
		return nil
	}
}

// New connects to cfg.RPCURL and builds a Service ready to Run.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.RelayerKeyHex, cfg.ChainID, chain.WithLogger(s.log))
	if err != nil {
		return nil, err
	}

	s.chain = client
	s.verifier = NewVerifier(client, cfg)
	s.settler = NewSettler(client, cfg)
	s.engine = s.buildEngine()
	return s, nil
}

func (s *Service) buildEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	})

	r.GET("/x402/health", s.handleHealth)

	authed := r.Group("/x402")
	authed.Use(s.requireSharedSecret)
	authed.POST("/verify", s.handleVerify(modeEscrow))
	authed.POST("/settle", s.handleSettle(modeEscrow))
	authed.POST("/verify-transfer", s.handleVerify(modeTransfer))
	authed.POST("/settle-transfer", s.handleSettle(modeTransfer))
	authed.POST("/demo-ai", s.handleDemoAI)

	return r
}

// Run binds cfg.ListenAddr and serves until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Service) requireSharedSecret(c *gin.Context) {
	if !checkSharedSecret(c.Request, s.cfg.SharedSecret) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid facilitator credential"})
		return
	}
	c.Next()
}

func (s *Service) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	balance, err := s.chain.NativeBalance(ctx, s.chain.RelayerAddress())
	if err != nil {
		s.log.Warn("health: failed to read relayer native balance", "error", err)
		balance = big.NewInt(0)
	}
	if balance.Sign() == 0 {
		s.log.Warn("relayer native balance is zero", "relayer", s.chain.RelayerAddress().Hex())
	}

	assets := s.cfg.Assets.Supported()
	supported := make([]gin.H, 0, len(assets))
	for _, a := range assets {
		supported = append(supported, gin.H{"address": a.Address, "symbol": a.Symbol, "eip3009": a.EIP3009})
	}

	c.JSON(http.StatusOK, gin.H{
		"x402Version":   x402.Version,
		"relayer":       s.chain.RelayerAddress().Hex(),
		"relayerNative": balance.String(),
		"network":       string(s.cfg.Network),
		"assets":        supported,
	})
}

type verifyRequest struct {
	Payload      x402.PaymentPayload      `json:"payload"`
	Requirements x402.PaymentRequirements `json:"requirements"`
}

func (s *Service) handleVerify(m mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed verify request"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		result, err := s.verifier.Verify(ctx, req.Payload, req.Requirements, m)
		if err != nil {
			s.log.Error("verify failed", "error", err)
			c.JSON(http.StatusOK, x402.VerifyResult{Valid: false, Reason: "verification unavailable"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) handleSettle(m mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed settle request"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		result, err := s.settler.Settle(ctx, req.Payload, req.Requirements, m)
		if err != nil {
			s.log.Error("settle failed", "error", err)
			c.JSON(http.StatusInternalServerError, settleFailure(err.Error()))
			return
		}
		if !result.Success {
			c.JSON(http.StatusInternalServerError, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
