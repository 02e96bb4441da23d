// Package daemonserver wires the full client stack: config, chain
// transport, signing agent, session, ledger gateway, registry,
// orchestrator, and the RPC server on top.
package daemonserver

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"microloan/go-client/internal/api"
	"microloan/go-client/internal/app"
	"microloan/go-client/internal/bootstrap/clientconfig"
	"microloan/go-client/internal/chainrpc"
	"microloan/go-client/internal/fault"
	"microloan/go-client/internal/ledger"
	"microloan/go-client/internal/orchestrator"
	"microloan/go-client/internal/platform/metrics"
	"microloan/go-client/internal/platform/ratelimiter"
	"microloan/go-client/internal/registry"
	"microloan/go-client/internal/stats"
	"microloan/go-client/internal/wallet"
	"microloan/go-client/internal/wallet/localagent"
)

const (
	mnemonicEnv   = "LOAND_MNEMONIC"
	passphraseEnv = "LOAND_KEYSTORE_PASSPHRASE"

	notificationHistory = 256
	rpcRatePerSec       = 30
	rpcBurst            = 60
)

// NewRPCServer builds the daemon from configuration. The returned
// cleanup func releases the session and the chain connection; call it
// after Run returns.
func NewRPCServer(ctx context.Context, configPath, listenAddr string) (*api.Server, func(), error) {
	log := slog.Default()

	cfg, err := clientconfig.LoadFromPath(configPath)
	if err != nil {
		return nil, nil, err
	}
	if listenAddr != "" {
		cfg.Daemon.ListenAddr = listenAddr
	}

	chain, err := chainrpc.Dial(ctx, cfg.Chain.RPCEndpoint)
	if err != nil {
		return nil, nil, fault.Wrap(fault.CodeNetwork, "chain endpoint unreachable", err)
	}

	agent, err := buildSigningAgent(cfg, chain)
	if err != nil {
		chain.Close()
		return nil, nil, err
	}

	session := wallet.NewSession(agent, log)
	gateway := ledger.NewGateway(chain, agent, cfg.Contract(), ledger.ConfirmPolicy{
		PollInterval: cfg.Confirm.PollInterval,
		MaxAttempts:  cfg.Confirm.MaxAttempts,
	}, log)

	var readLimiter *rate.Limiter
	if cfg.Daemon.ReadRatePerSec > 0 {
		burst := int(cfg.Daemon.ReadRatePerSec)
		if burst < 1 {
			burst = 1
		}
		readLimiter = rate.NewLimiter(rate.Limit(cfg.Daemon.ReadRatePerSec), burst)
	}
	reader := registry.NewReader(gateway, readLimiter, log)

	orch := orchestrator.New(gateway, session, metrics.NewOrchestration(prometheus.DefaultRegisterer), log)
	svc := app.NewService(session, orch, reader, gateway, stats.Aggregate, app.NewNotificationHub(notificationHistory), log)

	server := api.NewServer(cfg.Daemon.ListenAddr, svc, ratelimiter.New(rpcRatePerSec, rpcBurst, 0), log)
	cleanup := func() {
		svc.Close()
		chain.Close()
	}
	return server, cleanup, nil
}

// buildSigningAgent resolves key material in order: existing keystore,
// then mnemonic from the environment (persisted to the keystore when a
// path is configured).
func buildSigningAgent(cfg clientconfig.Config, chain *chainrpc.Client) (*localagent.Agent, error) {
	passphrase := os.Getenv(passphraseEnv)
	keystorePath := cfg.Agent.KeystorePath

	if keystorePath != "" {
		if _, err := os.Stat(keystorePath); err == nil {
			if passphrase == "" {
				return nil, fault.New(fault.CodeConfiguration, passphraseEnv+" is required to open the keystore")
			}
			agent, err := localagent.LoadKeystore(keystorePath, passphrase, chain, nil)
			if err != nil {
				return nil, fault.Wrap(fault.CodeConfiguration, "keystore open failed", err)
			}
			return agent, nil
		}
	}

	mnemonic := strings.TrimSpace(os.Getenv(mnemonicEnv))
	if mnemonic == "" {
		return nil, fault.New(fault.CodeConfiguration, "no signing key material: set "+mnemonicEnv+" or configure agent.keystorePath")
	}
	agent, err := localagent.NewFromMnemonic(mnemonic, chain, nil)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConfiguration, "mnemonic rejected", err)
	}
	if keystorePath != "" && passphrase != "" {
		if err := agent.SaveKeystore(keystorePath, passphrase); err != nil {
			return nil, fault.Wrap(fault.CodeConfiguration, "keystore write failed", err)
		}
	}
	return agent, nil
}
