// Command synapsed runs the tiered memory engine: the Tool Protocol Layer
// over stdio, the background scheduler, and (if enabled) the operational
// HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synapsedb/synapse/internal/embeddinggw"
	"github.com/synapsedb/synapse/internal/httpapi"
	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/protocol"
	"github.com/synapsedb/synapse/internal/ratelimit"
	"github.com/synapsedb/synapse/internal/scheduler"
	"github.com/synapsedb/synapse/internal/store"
	"github.com/synapsedb/synapse/internal/tiermanager"
	"github.com/synapsedb/synapse/pkg/config"
)

func main() {
	configDir := flag.String("config", "", "config directory (optional, defaults to env + built-in defaults)")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})
	log := logging.GetLogger("synapsed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	mathCfg := cfg.MathConfigValue()

	st, err := store.Open(ctx, store.PoolConfig{
		URL:                         cfg.Database.URL,
		MaxConns:                    cfg.Database.MaxConns,
		MinConns:                    cfg.Database.MinConns,
		StatementTimeout:            cfg.Database.StatementTimeout,
		MaintenanceStatementTimeout: cfg.Database.MaintenanceStatementTimeout,
		EmbeddingDimension:          cfg.Embedding.Dimension,
	}, mathCfg)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.InitSchema(ctx); err != nil {
		log.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	embedder := embeddinggw.New(embeddinggw.Config{
		URL:        cfg.Embedding.URL,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
	})

	tiers := tiermanager.New(st, mathCfg, tiermanager.Config{
		WorkingCapacity:         cfg.Tiers.WorkingCapacity,
		MigrationCandidateLimit: cfg.Tiers.MigrationCandidateLimit,
	})

	clientCerts := make(map[string]protocol.ClientCert, len(cfg.Auth.ClientCertificates))
	for thumbprint, cert := range cfg.Auth.ClientCertificates {
		clientCerts[thumbprint] = protocol.ClientCert{
			ClientID:  cert.ClientID,
			ExpiresAt: cert.ExpiresAt,
			Scopes:    cert.Scopes,
		}
	}
	auth := protocol.NewAuthenticator(cfg.Auth.SigningSecret, cfg.Auth.APIKeys, clientCerts, cfg.Auth.RequiredScope)

	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled: cfg.RateLimit.Enabled,
		Global: ratelimit.LimitConfig{
			RequestsPerSecond: cfg.RateLimit.GlobalRPS,
			BurstSize:         cfg.RateLimit.GlobalBurst,
		},
		PerClient: ratelimit.LimitConfig{
			RequestsPerSecond: cfg.RateLimit.PerClientRPS,
			BurstSize:         cfg.RateLimit.PerClientBurst,
		},
		ClientIdleTTL: cfg.RateLimit.ClientIdleTTL,
	})
	go limiter.RunReaper(ctx)

	if err := config.WatchRateLimit(*configDir, func(rl config.RateLimitConfig) {
		log.Info("rate limit config changed, reloading")
		limiter.UpdateConfig(&ratelimit.Config{
			Enabled: rl.Enabled,
			Global: ratelimit.LimitConfig{
				RequestsPerSecond: rl.GlobalRPS,
				BurstSize:         rl.GlobalBurst,
			},
			PerClient: ratelimit.LimitConfig{
				RequestsPerSecond: rl.PerClientRPS,
				BurstSize:         rl.PerClientBurst,
			},
			ClientIdleTTL: rl.ClientIdleTTL,
		})
	}); err != nil {
		log.Warn("rate limit hot-reload watch not started", "error", err)
	}

	sched := scheduler.New(st, tiers, mathCfg, scheduler.Config{
		Cadence:       cfg.Scheduler.Cadence,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace,
	})
	sched.Start(ctx)
	defer sched.Stop()

	if cfg.HTTP.Enabled {
		httpSrv := httpapi.NewServer(st, cfg.HTTP, cfg.Database.SaturationAlertThreshold)
		go func() {
			if err := httpSrv.Run(ctx, 10*time.Second); err != nil {
				log.Error("operational http server stopped with error", "error", err)
			}
		}()
	}

	server := protocol.NewServer(st, embedder, tiers, auth, limiter, cfg.Database.SaturationAlertThreshold)
	if err := server.Run(ctx); err != nil && err != context.Canceled {
		log.Error("protocol server error", "error", err)
		os.Exit(1)
	}
}
