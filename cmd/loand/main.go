package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"microloan/go-client/internal/composition/daemonserver"
	"microloan/go-client/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	listenAddr := flag.String("listen-addr", "", "JSON-RPC listen address (overrides config)")
	configPath := flag.String("config", "", "Path to loand.yaml (optional)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Ethereum JSON-RPC endpoint (overrides config)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("loand version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	slog.SetDefault(slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stdout, nil))))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *rpcEndpoint != "" {
		_ = os.Setenv("LOAND_RPC_ENDPOINT", *rpcEndpoint)
	}

	srv, cleanup, err := daemonserver.NewRPCServer(ctx, *configPath, *listenAddr)
	if err != nil {
		log.Fatalf("loand failed to initialize: %v", err)
	}
	defer cleanup()

	log.Println("loand starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("loand failed: %v", err)
	}
	log.Println("loand stopped")
}
