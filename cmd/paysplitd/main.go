package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"paysplit/config"
	"paysplit/core"
	"paysplit/crypto"
	"paysplit/gateway"
	"paysplit/native/common"
	"paysplit/native/split"
	"paysplit/observability/logging"
	"paysplit/rpc"
	"paysplit/storage"
	"paysplit/storage/journal"
)

const keystorePassEnv = "PAYSPLIT_KEYSTORE_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("paysplitd", cfg.Env, logging.ParseLevel(cfg.LogLevel))

	operator, err := cfg.Operator()
	if err != nil {
		logger.Error("Failed to decode operator address", slog.Any("error", err))
		os.Exit(1)
	}
	if err := verifyKeystore(cfg, operator); err != nil {
		logger.Error("Operator keystore check failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		panic(fmt.Sprintf("Failed to prepare data directory: %v", err))
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	journalPath := cfg.JournalFile()
	if err := os.MkdirAll(filepath.Dir(journalPath), 0o755); err != nil {
		panic(fmt.Sprintf("Failed to prepare journal directory: %v", err))
	}
	eventJournal, err := journal.Open(journalPath, nil)
	if err != nil {
		panic(fmt.Sprintf("Failed to open event journal: %v", err))
	}
	defer eventJournal.Close()

	node, err := core.NewNode(db, operator)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}
	node.SetLogger(logger)
	node.SetJournal(eventJournal)

	policy, err := split.ParsePolicy(cfg.ReleasePolicy)
	if err != nil {
		logger.Error("Failed to parse release policy", slog.Any("error", err))
		os.Exit(1)
	}
	node.SetPolicy(policy)

	quota, err := cfg.QuotaLimits()
	if err != nil {
		logger.Error("Failed to parse deposit quota", slog.Any("error", err))
		os.Exit(1)
	}
	node.SetQuota(quota)
	node.SetPauses(common.NewPauses(cfg.PausedModules...))

	if seedPath := cfg.RosterSeedPath; seedPath != "" {
		payees, err := config.LoadRosterSeed(seedPath)
		if err != nil {
			logger.Error("Failed to load roster seed", slog.Any("error", err))
			os.Exit(1)
		}
		applied, err := node.SeedRoster(payees)
		if err != nil {
			logger.Error("Failed to apply roster seed", slog.Any("error", err))
			os.Exit(1)
		}
		if applied {
			logger.Info("Roster seeded from file", slog.String("path", seedPath), slog.Int("payees", len(payees)))
		} else {
			logger.Info("Roster already populated, seed file skipped", slog.String("path", seedPath))
		}
	}

	rpcServer := rpc.NewServer(node)
	rpcServer.SetLogger(logger)

	rpcHTTP := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	opsHTTP := &http.Server{
		Addr:              cfg.OpsAddress,
		Handler:           gateway.New(gateway.Config{Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serve := func(name string, server *http.Server) {
		logger.Info("Listening", slog.String("server", name), slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server terminated", slog.String("server", name), slog.Any("error", err))
			stop()
		}
	}
	go serve("rpc", rpcHTTP)
	go serve("ops", opsHTTP)

	logger.Info("Ledger node initialised and running",
		slog.String("operator", cfg.OperatorAddress),
		slog.String("policy", cfg.ReleasePolicy),
	)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rpcHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if err := opsHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops shutdown failed", slog.Any("error", err))
	}
}

// verifyKeystore confirms the stored operator key matches the configured
// address before the daemon starts serving.
func verifyKeystore(cfg *config.Config, operator [20]byte) error {
	if cfg.KeystorePath == "" {
		return nil
	}
	key, err := crypto.LoadFromKeystore(cfg.KeystorePath, os.Getenv(keystorePassEnv))
	if err != nil {
		return err
	}
	derived := key.PubKey().Address().Array()
	if derived != operator {
		return fmt.Errorf("keystore key resolves to %s, config names %s",
			crypto.EncodeAddress(derived), crypto.EncodeAddress(operator))
	}
	return nil
}
