package facilitator

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/x402gate/seller/client"
)

// demoAIRequest names the seller resource the loopback buyer should fetch.
type demoAIRequest struct {
	URL string `json:"url" binding:"required"`
}

// demoAIResponse reports how the loopback client flow ended.
type demoAIResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body,omitempty"`
	Settled    bool   `json:"settled"`
	TxHash     string `json:"txHash,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleDemoAI drives the full buyer-side flow — GET, parse 402, sign,
// retry with PAYMENT-SIGNATURE — against req.URL using the boot-time demo
// buyer key, so a browser demo never has to hold a private key itself.
func (s *Service) handleDemoAI(c *gin.Context) {
	if s.cfg.DemoBuyerKeyHex == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "demo-ai is not configured"})
		return
	}

	var req demoAIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed demo-ai request"})
		return
	}

	opts := []client.Option{client.WithPrivateKey(s.cfg.DemoBuyerKeyHex)}
	for _, a := range s.cfg.Assets.Supported() {
		opts = append(opts, client.WithAsset(a.Address, a.DomainName, a.DomainVersion))
	}
	buyer, err := client.New(s.cfg.Network, opts...)
	if err != nil {
		s.log.Error("demo-ai: failed to build buyer signer", "error", err)
		c.JSON(http.StatusInternalServerError, demoAIResponse{Error: "failed to construct buyer signer"})
		return
	}

	transport := client.New402Transport(buyer, nil)
	httpClient := &http.Client{Transport: transport, Timeout: 45 * time.Second}

	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, req.URL, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, demoAIResponse{Error: "invalid target url"})
		return
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		s.log.Error("demo-ai: request failed", "url", req.URL, "error", err)
		c.JSON(http.StatusOK, demoAIResponse{Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	out := demoAIResponse{StatusCode: resp.StatusCode, Body: string(body)}
	if transport.LastSettlement != nil {
		out.Settled = transport.LastSettlement.Success
		out.TxHash = transport.LastSettlement.Transaction
	}
	c.JSON(http.StatusOK, out)
}
