// translatord runs the SV1-to-SV2 translator: it accepts legacy SV1
// miners, opens one or more extended mining channels against an SV2
// pool, and forwards accepted shares upstream for mint-quote
// correlation.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashpool/hashpool/internal/config"
	"github.com/hashpool/hashpool/internal/policy"
	"github.com/hashpool/hashpool/internal/profiling"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/telemetry"
	"github.com/hashpool/hashpool/internal/translator"
	"github.com/hashpool/hashpool/internal/util"
	"github.com/hashpool/hashpool/internal/vardiff"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("translatord v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("translatord v%s starting", version)

	upstreamKey, err := decodeUpstreamStaticKey(cfg.Translator.UpstreamStaticKey)
	if err != nil {
		util.Fatalf("Failed to decode translator.upstream_static_key: %v", err)
	}

	lockingKey, err := decodeLockingKey(cfg.Translator.LockingKeyHex)
	if err != nil {
		util.Fatalf("Failed to decode translator.locking_key: %v", err)
	}

	var banStore *policy.BanStore
	var policyServer *policy.PolicyServer
	if cfg.Policy.BanningEnabled || cfg.Policy.RateLimitEnabled || cfg.Policy.ScoreEnabled {
		banStore, err = policy.NewBanStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			util.Fatalf("Failed to connect to Redis for policy store: %v", err)
		}
		defer banStore.Close()
		policyCfg := cfg.Policy.ToPolicyConfig()
		policyServer = policy.NewPolicyServer(&policyCfg, banStore)
		policyServer.Start()
	}

	var nrAgent *telemetry.Agent
	if cfg.NewRelic.Enabled {
		nrAgent = telemetry.NewAgent(&cfg.NewRelic)
		if err := nrAgent.Start(); err != nil {
			util.Warnf("Failed to start New Relic agent: %v", err)
		}
	}

	var pprofServer *profiling.Server
	if cfg.Profiling.Enabled {
		pprofServer = profiling.NewServer(&cfg.Profiling)
		if err := pprofServer.Start(); err != nil {
			util.Warnf("Failed to start profiling server: %v", err)
		}
	}

	manager, err := translator.NewManager(translator.Config{
		Aggregated:        cfg.Translator.Aggregated,
		ListenAddr:        cfg.Translator.ListenAddr,
		WSListenAddr:      cfg.Translator.WSListenAddr,
		UpstreamAddr:      cfg.Translator.UpstreamAddr,
		UpstreamStaticKey: upstreamKey,
		EndpointHost:      cfg.Translator.EndpointHost,
		EndpointPort:      cfg.Translator.EndpointPort,
		LockingKey:        lockingKey,
		MinExtranonceSize: cfg.Translator.MinExtranonceSize,
		Extranonce2Size:   cfg.Translator.Extranonce2Size,
		SharesPerMinute:   cfg.Vardiff.SharesPerMinute,
		VardiffConfig: vardiff.Config{
			SharesPerMinute:       cfg.Vardiff.SharesPerMinute,
			WindowSeconds:         cfg.Vardiff.WindowSeconds,
			MaxFactor:             cfg.Vardiff.MaxFactor,
			Hysteresis:            cfg.Vardiff.Hysteresis,
			MinIndividualHashrate: cfg.Vardiff.MinIndividualHashrate,
			MaxHashrate:           cfg.Vardiff.MaxHashrate,
		},
		ClockSkewSeconds: cfg.Pool.ClockSkewSeconds,
		QuoteTTL:         cfg.Translator.QuoteTTL,
		Policy:           policyServer,
	}, noopWallet{})
	if err != nil {
		util.Fatalf("Failed to start translator manager: %v", err)
	}

	if err := manager.Start(); err != nil {
		util.Fatalf("Failed to start translator listeners: %v", err)
	}

	util.Infof("translatord listening on %s, upstream %s", cfg.Translator.ListenAddr, cfg.Translator.UpstreamAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	util.Info("Shutting down...")

	manager.Stop()
	if policyServer != nil {
		policyServer.Stop()
	}
	if pprofServer != nil {
		pprofServer.Stop()
	}
	if nrAgent != nil {
		nrAgent.Stop()
	}

	util.Info("translatord stopped")
}

// noopWallet is the placeholder translator.WalletCollaborator this
// binary wires in place of real wallet custody, which is out of scope:
// it logs the redemption it was asked to perform instead of ever
// holding a Cashu token. A real deployment replaces this with
// something that actually receives and stores the miner's ehash.
type noopWallet struct{}

func (noopWallet) Redeem(ctx context.Context, workerIdentity, quoteID string, amount uint64) error {
	util.Warnf("translator: quote %s (%d sats) owed to %s but no wallet is configured to receive it", quoteID, amount, workerIdentity)
	return nil
}

func decodeUpstreamStaticKey(hexKey string) ([sv2noise.DHKeySize]byte, error) {
	var out [sv2noise.DHKeySize]byte
	raw, err := util.HexToBytes(hexKey)
	if err != nil {
		return out, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != sv2noise.DHKeySize {
		return out, fmt.Errorf("must be %d bytes, got %d", sv2noise.DHKeySize, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeLockingKey(hexKey string) (*[33]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != 33 {
		return nil, fmt.Errorf("must be 33 bytes, got %d", len(raw))
	}
	var out [33]byte
	copy(out[:], raw)
	return &out, nil
}
