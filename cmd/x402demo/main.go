// Command x402demo runs either side of the x402 payment flow: a facilitator
// plus paywalled seller ("server"), or a buyer that pays for one URL ("client").
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/x402gate/seller"
	"github.com/x402gate/seller/client"
	"github.com/x402gate/seller/config"
	"github.com/x402gate/seller/facilitator"
	"github.com/x402gate/seller/gate"
	"github.com/x402gate/seller/paymentlog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "server":
		runServer(os.Args[2:])
	case "client":
		runClient(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("x402demo - example x402 v2 payment facilitator, seller, and buyer")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  x402demo server [flags]  - run a facilitator + paywalled seller endpoint")
	fmt.Println("  x402demo client [flags]  - pay for and fetch one URL")
	fmt.Println()
	fmt.Println("Configuration is read from the environment (see .env); run 'x402demo server --help' for overrides.")
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	listenAddr := fs.String("listen", "127.0.0.1:8080", "seller listen address")
	facilitatorAddr := fs.String("facilitator", "127.0.0.1:3849", "facilitator listen address")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log := slog.Default()
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Default().Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.Default()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	assetRegistry, err := x402.NewAssetRegistry(cfg.AssetDescriptor())
	if err != nil {
		logger.Error("failed to build asset registry", "error", err)
		os.Exit(1)
	}

	chainID, err := cfg.ChainID()
	if err != nil {
		logger.Error("invalid network", "error", err)
		os.Exit(1)
	}

	facilitatorCfg := facilitator.Config{
		ListenAddr:      *facilitatorAddr,
		Network:         cfg.Network,
		ChainID:         chainID,
		RPCURL:          cfg.RPCURL,
		RelayerKeyHex:   cfg.RelayerPrivateKeyHex,
		Assets:          assetRegistry,
		EscrowAdapter:   cfg.EscrowAdapter(),
		SharedSecret:    cfg.FacilitatorSharedSecret,
		DemoBuyerKeyHex: cfg.DemoBuyerKeyHex,
	}

	facilitatorSvc, err := facilitator.New(ctx, facilitatorCfg, facilitator.WithLogger(logger.With("component", "facilitator")))
	if err != nil {
		logger.Error("failed to start facilitator", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := facilitatorSvc.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("facilitator stopped", "error", err)
		}
	}()

	paymentLog, err := paymentlog.Open(cfg.PaymentLogPath, logger.With("component", "paymentlog"))
	if err != nil {
		logger.Error("failed to open payment log", "error", err)
		os.Exit(1)
	}
	defer paymentLog.Close()

	gateCfg := gate.Config{
		Facilitator: gate.NewFacilitatorClient(facilitatorURL(*facilitatorAddr), cfg.FacilitatorSharedSecret),
		Requirements: []x402.PaymentRequirements{{
			Scheme:  x402.SchemeExact,
			Network: string(cfg.Network),
			Asset:   cfg.AssetAddress,
			PayTo:   cfg.Treasury,
			Amount:  cfg.PriceAtomic,
			Extra:   x402.Extra{SettlementMode: x402.SettlementModeTransfer},
		}},
		PaymentLog: paymentLog,
	}

	router := chi.NewRouter()
	router.With(gate.New(gateCfg, gate.WithLogger(logger.With("component", "gate")))).Get("/data", handlePremium)
	router.Get("/public", handlePublic)
	router.Get("/", handleIndex)

	srv := &http.Server{Addr: *listenAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("seller listening", "addr", *listenAddr)
	logger.Info("facilitator listening", "addr", *facilitatorAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("seller stopped", "error", err)
		os.Exit(1)
	}
}

func facilitatorURL(addr string) string { return "http://" + addr }

func handlePremium(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":   "paid resource delivered",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func handlePublic(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"message": "this endpoint is free"})
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "x402 demo seller")
	fmt.Fprintln(w, "  GET /data   - paywalled, requires x402 payment")
	fmt.Fprintln(w, "  GET /public - free")
}

func runClient(args []string) {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	key := fs.String("key", "", "buyer private key (hex, with or without 0x prefix)")
	url := fs.String("url", "", "URL to fetch (must be x402-paywalled)")
	network := fs.String("network", "eip155:84532", "network tag to pay on")
	asset := fs.String("asset", "", "asset contract address")
	domainName := fs.String("domain-name", "USD Coin", "EIP-712 domain name for the asset")
	domainVersion := fs.String("domain-version", "2", "EIP-712 domain version for the asset")
	maxAmount := fs.String("max", "", "maximum amount per call, asset smallest unit (optional)")
	verbose := fs.Bool("verbose", false, "print the signed payment payload")
	fs.Parse(args)

	if *key == "" || *url == "" || *asset == "" {
		fmt.Println("Error: --key, --url, and --asset are all required")
		fs.PrintDefaults()
		os.Exit(1)
	}
	if !common.IsHexAddress(*asset) {
		fmt.Println("Error: --asset is not a valid address")
		os.Exit(1)
	}

	opts := []client.Option{
		client.WithPrivateKey(*key),
		client.WithAsset(*asset, *domainName, *domainVersion),
	}
	if *maxAmount != "" {
		opts = append(opts, client.WithMaxAmount(*maxAmount))
	}

	signer, err := client.New(x402.NetworkTag(*network), opts...)
	if err != nil {
		fmt.Printf("failed to build signer: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("buyer address: %s\n", signer.Address().Hex())

	transport := client.New402Transport(signer, nil)
	httpClient := &http.Client{Transport: transport}

	resp, err := httpClient.Get(*url)
	if err != nil {
		fmt.Printf("request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if *verbose {
		if decoded, err := base64.StdEncoding.DecodeString(resp.Request.Header.Get("Payment-Signature")); err == nil {
			var pretty map[string]any
			json.Unmarshal(decoded, &pretty)
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Printf("sent payment payload:\n%s\n\n", out)
		}
	}

	if transport.LastSettlement != nil {
		if transport.LastSettlement.Success {
			fmt.Printf("payment settled: tx=%s payer=%s\n", transport.LastSettlement.Transaction, transport.LastSettlement.Payer)
		} else {
			fmt.Printf("payment failed: %s\n", transport.LastSettlement.ErrorReason)
		}
	}

	fmt.Printf("response status: %d\n", resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("failed to read response body: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}
