// mintd runs the mint side of the pool<->mint quote protocol: a Noise
// responder that answers MintQuoteRequests over a dedicated SV2
// connection, and the HTTP endpoint poold's poller uses to learn which
// quotes have settled. Real Cashu mint internals (blind-signature
// issuance, Lightning settlement, NUT-04/NUT-07) are out of scope; see
// internal/mintengine for the documented stand-in this binary wires.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashpool/hashpool/internal/config"
	"github.com/hashpool/hashpool/internal/mintapi"
	"github.com/hashpool/hashpool/internal/mintengine"
	"github.com/hashpool/hashpool/internal/profiling"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/telemetry"
	"github.com/hashpool/hashpool/internal/util"
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
		fmt.Printf("mintd v%s (built %s)\n", version, buildTime)
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

	util.Infof("mintd v%s starting", version)

	staticKey, err := loadOrGenerateStaticKey(cfg.Mint.StaticKeyHex)
	if err != nil {
		util.Fatalf("Failed to load mint static key: %v", err)
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

	ledger := mintengine.NewLedger()

	sv2Server := mintengine.NewServer(staticKey, ledger)
	if err := sv2Server.Start(cfg.Mint.SV2Bind); err != nil {
		util.Fatalf("Failed to start mint SV2 server: %v", err)
	}

	apiServer := mintapi.NewServer(cfg.Mint.APIBind, ledger)
	if err := apiServer.Start(); err != nil {
		util.Fatalf("Failed to start mint HTTP server: %v", err)
	}

	util.Infof("mintd: SV2 quote listener on %s, HTTP quote listing on %s", cfg.Mint.SV2Bind, cfg.Mint.APIBind)
	util.Infof("mintd: static public key %x (configure this as poold's mint.remote_key)", staticKey.Public)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	util.Info("Shutting down...")

	sv2Server.Stop()
	if err := apiServer.Stop(); err != nil {
		util.Warnf("mint HTTP server stop: %v", err)
	}
	if pprofServer != nil {
		pprofServer.Stop()
	}
	if nrAgent != nil {
		nrAgent.Stop()
	}

	util.Info("mintd stopped")
}

func loadOrGenerateStaticKey(hexKey string) (*sv2noise.KeyPair, error) {
	if hexKey == "" {
		kp, err := sv2noise.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		util.Warnf("mint: no static key configured, generated a fresh one for this run: %x (persist this to keep the Noise identity stable across restarts)", kp.Public)
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
