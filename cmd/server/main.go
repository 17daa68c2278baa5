package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"cloudgate/internal/account/management"
	"cloudgate/internal/audit"
	accountservice "cloudgate/internal/account/service"
	authservice "cloudgate/internal/auth/service"
	"cloudgate/internal/auth/store/session"
	"cloudgate/internal/auth/token"
	"cloudgate/internal/i18n"
	"cloudgate/internal/platform/config"
	"cloudgate/internal/platform/httpserver"
	"cloudgate/internal/platform/logger"
	"cloudgate/internal/platform/metrics"
	"cloudgate/internal/platform/middleware"
	"cloudgate/internal/platform/redis"
	httptransport "cloudgate/internal/transport/http"
	"cloudgate/pkg/platform/middleware/metadata"
)

const sessionCleanupInterval = time.Minute

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		slog.Error("cloudgate stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	m := metrics.New(prometheus.DefaultRegisterer)
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	tokens, err := token.New(token.Config{
		ClientID:       cfg.Provider.ClientID,
		Secret:         cfg.Provider.Secret,
		OAuthServerURL: cfg.Provider.OAuthServerURL,
		RedirectURI:    cfg.Provider.RedirectURI,
	}, token.WithHTTPClient(httpClient))
	if err != nil {
		return err
	}
	verifier := token.NewVerifier(token.VerifierConfig{
		OAuthServerURL: cfg.Provider.OAuthServerURL,
		ClientID:       cfg.Provider.ClientID,
		TenantID:       cfg.Provider.TenantID,
		Version:        cfg.Provider.TokenVersion,
	}, httpClient)

	g, gctx := errgroup.WithContext(ctx)

	var (
		sessions authservice.SessionStore
		health   httptransport.HealthChecker
	)
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		sessions = session.NewRedis(redisClient.Client, session.WithRedisTTL(cfg.Session.TTL))
		health = redisClient
		g.Go(func() error {
			<-gctx.Done()
			return redisClient.Close()
		})
		log.Info("using redis session store")
	} else {
		memory := session.New(session.WithTTL(cfg.Session.TTL))
		sessions = memory
		g.Go(func() error { return memory.RunCleanup(gctx, sessionCleanupInterval) })
		log.Info("using in-memory session store")
	}

	auditor := audit.NewPublisher(audit.NewLogSink(log.With("component", "audit")), log,
		audit.WithBufferCapacity(cfg.Audit.BufferSize),
		audit.WithFlushInterval(cfg.Audit.FlushInterval),
	)
	g.Go(func() error { return auditor.Run(gctx) })

	authSvc := authservice.New(sessions, tokens, verifier, log, authservice.Config{
		DefaultSuccessURL: cfg.Provider.DefaultSuccessURL,
		TransactionTTL:    cfg.Session.TransactionTTL,
	}, authservice.WithMetrics(m), authservice.WithAuditor(auditor))

	catalog, err := i18n.Load()
	if err != nil {
		return err
	}
	renderer, err := httptransport.NewRenderer(catalog, log)
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.LoginPerSecond, cfg.RateLimit.LoginBurst, log,
		middleware.WithRateLimitDisabled(cfg.RateLimit.Disabled),
		middleware.WithRateLimitMetrics(m),
	)

	routerCfg := httptransport.RouterConfig{
		Logger:  log,
		Auth:    httptransport.NewAuthHandler(authSvc, renderer, log, limiter),
		Health:  health,
		Metrics: promhttp.Handler(),
		SessionCookie: middleware.SessionCookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			MaxAge: cfg.Session.TTL,
		},
		RequestTimeout: cfg.Server.RequestTimeout,
	}

	if cfg.ManagementEnabled() {
		var bearer oauth2.TokenSource
		if cfg.Management.IAMAPIKey != "" {
			bearer = management.IAMTokenSource(ctx, cfg.Management.IAMTokenURL, cfg.Management.IAMAPIKey, httpClient)
		} else {
			bearer = tokens.TokenSource(ctx)
		}
		directory, err := management.New(management.Config{ManagementURL: cfg.Management.URL}, bearer,
			management.WithHTTPClient(httpClient),
			management.WithMetrics(m),
		)
		if err != nil {
			return err
		}
		accounts := accountservice.New(directory, log, accountservice.WithMetrics(m))
		routerCfg.Account = httptransport.NewAccountHandler(accounts, renderer, log, limiter)
	} else {
		log.Warn("APPID_MANAGEMENT_URL not set; account routes are disabled")
	}

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	routerCfg.TrustedProxies = proxies

	srv := httpserver.New(cfg.Server.Addr(), httptransport.NewRouter(routerCfg))
	g.Go(func() error {
		log.Info("starting cloudgate", "addr", srv.Addr)
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
	})

	return g.Wait()
}
