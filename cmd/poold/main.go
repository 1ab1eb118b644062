// poold runs the pool's SV2 connection engine: Noise responder, share
// validator, and the quote-dispatch pipeline that turns accepted shares
// into MintQuoteRequests against a mint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashpool/hashpool/internal/config"
	"github.com/hashpool/hashpool/internal/mintclient"
	"github.com/hashpool/hashpool/internal/policy"
	"github.com/hashpool/hashpool/internal/pool"
	"github.com/hashpool/hashpool/internal/profiling"
	"github.com/hashpool/hashpool/internal/quotehub"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/target"
	"github.com/hashpool/hashpool/internal/telemetry"
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
		fmt.Printf("poold v%s (built %s)\n", version, buildTime)
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

	util.Infof("poold v%s starting", version)

	staticKey, err := loadOrGenerateStaticKey(cfg.Pool.StaticKeyHex)
	if err != nil {
		util.Fatalf("Failed to load pool static key: %v", err)
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

	mintHTTP := mintclient.NewClient(cfg.Mint.ClientURL, cfg.Mint.ClientTimeout)

	sender, err := dialMintSv2(cfg)
	if err != nil {
		util.Fatalf("Failed to configure mint connection: %v", err)
	}
	defer sender.Close()

	dispatcher := quotehub.NewDispatcher(sender, 256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	engine := pool.NewEngine(pool.Config{
		StaticKey:                  staticKey,
		MinimumShareDifficultyBits: cfg.Pool.MinimumShareDifficultyBits,
		ClockSkewSeconds:           cfg.Pool.ClockSkewSeconds,
		SharesPerMinute:            cfg.Vardiff.SharesPerMinute,
		VardiffConfig: vardiff.Config{
			SharesPerMinute:       cfg.Vardiff.SharesPerMinute,
			WindowSeconds:         cfg.Vardiff.WindowSeconds,
			MaxFactor:             cfg.Vardiff.MaxFactor,
			Hysteresis:            cfg.Vardiff.Hysteresis,
			MinIndividualHashrate: cfg.Vardiff.MinIndividualHashrate,
			MaxHashrate:           cfg.Vardiff.MaxHashrate,
		},
		ExtranoncePrefixSize: cfg.Pool.ExtranoncePrefixSize,
		Policy:               policyServer,
	}, dispatcher, newStaticTemplateProvider())

	notifier := quotehub.NewNotifier(engine.Channels(), engine)
	poller := quotehub.NewPoller(mintHTTP, dispatcher, notifier, 0)
	poller.Start(ctx)
	defer poller.Stop()

	listener, err := net.Listen("tcp", cfg.Pool.Bind)
	if err != nil {
		util.Fatalf("Failed to listen on %s: %v", cfg.Pool.Bind, err)
	}

	go func() {
		if err := engine.Start(listener); err != nil {
			util.Errorf("pool engine stopped: %v", err)
		}
	}()

	util.Infof("poold listening on %s, using mint %s", cfg.Pool.Bind, cfg.Mint.ClientURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	util.Info("Shutting down...")

	engine.Stop()
	if policyServer != nil {
		policyServer.Stop()
	}
	if pprofServer != nil {
		pprofServer.Stop()
	}
	if nrAgent != nil {
		nrAgent.Stop()
	}

	util.Info("poold stopped")
}

// dialMintSv2 points poold's quote sender at the mint's dedicated SV2
// listener (MintConfig.SV2Addr), pinning the mint's long-term Noise
// static public key from MintConfig.RemoteKeyHex. The returned sender
// dials in the background and reconnects with exponential backoff if
// the connection drops; only config decoding errors are returned here.
func dialMintSv2(cfg *config.Config) (*mintclient.ReconnectingSender, error) {
	raw, err := util.HexToBytes(cfg.Mint.RemoteKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode mint.remote_key: %w", err)
	}
	if len(raw) != sv2noise.DHKeySize {
		return nil, fmt.Errorf("mint.remote_key must be %d bytes, got %d", sv2noise.DHKeySize, len(raw))
	}
	var remoteStatic [sv2noise.DHKeySize]byte
	copy(remoteStatic[:], raw)
	return mintclient.NewReconnectingSender(cfg.Mint.SV2Addr, remoteStatic, cfg.Pool.Bind, 0), nil
}

// staticTemplateProvider is the placeholder pool.TemplateProvider this
// binary wires in place of a real Bitcoin full-node integration, which
// is out of scope: it serves one fixed, never-updating template and
// logs rather than submits any block solution the share validator
// reports. A real deployment replaces this with a getblocktemplate
// poller satisfying the same interface.
type staticTemplateProvider struct {
	tmpl    pool.Template
	updates chan pool.Template
}

func newStaticTemplateProvider() *staticTemplateProvider {
	return &staticTemplateProvider{
		tmpl: pool.Template{
			JobID:         1,
			Version:       0x20000000,
			NTimeMin:      0,
			NBits:         0x1d00ffff,
			FutureJob:     true,
			NetworkTarget: target.Max,
		},
		updates: make(chan pool.Template),
	}
}

func (p *staticTemplateProvider) Current() pool.Template {
	return p.tmpl
}

func (p *staticTemplateProvider) Updates() <-chan pool.Template {
	return p.updates
}

func (p *staticTemplateProvider) SubmitBlockSolution(ctx context.Context, headerBytes []byte, tmpl pool.Template) error {
	util.Warnf("pool: found a block solution but no node RPC is configured to submit it: %x", headerBytes)
	return nil
}

func loadOrGenerateStaticKey(hexKey string) (*sv2noise.KeyPair, error) {
	if hexKey == "" {
		kp, err := sv2noise.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		util.Warnf("pool: no static key configured, generated a fresh one for this run: %x (persist this to keep the Noise identity stable across restarts)", kp.Public)
		return kp, nil
	}
	raw, err := util.HexToBytes(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode static key: %w", err)
	}
	if len(raw) != sv2noise.DHKeySize {
		return nil, fmt.Errorf("static key must be %d bytes, got %d", sv2noise.DHKeySize, len(raw))
	}
	var priv [sv2noise.DHKeySize]byte
	copy(priv[:], raw)
	return sv2noise.KeyPairFromPrivate(priv), nil
}
