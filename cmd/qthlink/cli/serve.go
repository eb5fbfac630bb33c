package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qthlink/qthlink/internal/adminapi"
	"github.com/qthlink/qthlink/internal/audit"
	"github.com/qthlink/qthlink/internal/auth"
	"github.com/qthlink/qthlink/internal/command"
	"github.com/qthlink/qthlink/internal/config"
	"github.com/qthlink/qthlink/internal/entity"
	"github.com/qthlink/qthlink/internal/hass"
	"github.com/qthlink/qthlink/internal/logging"
	"github.com/qthlink/qthlink/internal/server"
	"github.com/qthlink/qthlink/internal/session"
)

// RegisterServeCommand adds the gateway server command.
func RegisterServeCommand(root *cobra.Command) {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "qthlink.yaml", "Path to configuration file")
	root.AddCommand(cmd)
}

func runServe(cfg *config.Config) error {
	log := logging.NewLogger(cfg.Log.Level)

	auditLog, auditDB, err := audit.Open(cfg.Audit.DBPath)
	if err != nil {
		return err
	}
	defer auditDB.Close()

	secrets, err := openSecretStore(cfg)
	if err != nil {
		return err
	}

	limiter := auth.NewRateLimiter(
		cfg.Security.FailedAttemptThreshold,
		time.Duration(cfg.Security.LockoutSeconds)*time.Second,
	)
	authenticator := auth.NewAuthenticator(secrets, limiter)

	client := hass.NewClient(
		cfg.Backend.URL,
		cfg.Backend.Token,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
	)
	filter := entity.NewFilter(
		cfg.Backend.EntityFilter.IncludeDomains,
		cfg.Backend.EntityFilter.ExcludeEntities,
	)
	cache := entity.NewCache(client, filter.Include,
		time.Duration(cfg.Backend.CacheTTLSeconds)*time.Second)

	ranges := entity.DefaultRanges()
	if len(cfg.Display.ValueRanges) > 0 {
		overrides := make(map[string]entity.Range, len(cfg.Display.ValueRanges))
		for domain, r := range cfg.Display.ValueRanges {
			overrides[domain] = entity.Range{Min: r.Min, Max: r.Max}
		}
		ranges = ranges.Merge(overrides)
	}

	dispatcher := command.NewDispatcher(cache, client, ranges, cfg.Display.PageSize, log)
	registry := session.NewRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the cache so the first caller's listing is served locally.
	// A down backend is not fatal here; the first command retries.
	if n, err := cache.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial entity fetch failed")
	} else {
		log.Info().Int("entities", n).Msg("entity cache primed")
		auditLog.Log(audit.EventCacheRefreshed, "", "", "", map[string]any{"entities": n})
	}

	srv := server.New(server.Config{
		Addr:           cfg.ListenAddr(),
		MaxConnections: cfg.Listen.MaxConnections,
		AllowedNets:    cfg.AllowedPrefixes(),
		Session: session.Config{
			Banner:               cfg.Security.WelcomeBanner,
			NodeSuppliedCallsign: cfg.Listen.NodeSuppliedCallsign,
			MaxAuthAttempts:      cfg.Security.MaxAuthAttempts,
			IdleTimeout:          time.Duration(cfg.Listen.IdleTimeoutSeconds) * time.Second,
			LinesPerSecond:       cfg.Security.LinesPerSecond,
			LineBurst:            cfg.Security.LineBurst,
		},
	}, authenticator, registry, dispatcher, auditLog, log)

	if err := srv.Listen(); err != nil {
		return err
	}

	if cfg.Admin.Addr != "" {
		svc := adminapi.NewService(registry, cache, srv.Stats, auditDB)
		adminSrv, err := adminapi.NewServer(cfg.Admin.Addr, svc)
		if err != nil {
			return err
		}
		log.Info().Str("addr", adminSrv.Addr()).Msg("admin API listening")
		go adminSrv.Serve()
		defer adminSrv.Stop()
	}

	err = srv.Serve(ctx)
	log.Info().Msg("server stopped")
	return err
}
