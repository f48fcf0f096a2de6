package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/shipkit/platform/internal/app/migrate"
	"github.com/shipkit/platform/internal/cache"
	"github.com/shipkit/platform/internal/github"
	httpx "github.com/shipkit/platform/internal/http"
	"github.com/shipkit/platform/internal/mail"
	"github.com/shipkit/platform/internal/repository/postgres"
	"github.com/shipkit/platform/internal/service/apikey"
	"github.com/shipkit/platform/internal/service/auth"
	"github.com/shipkit/platform/internal/service/billing"
	"github.com/shipkit/platform/internal/service/content"
	"github.com/shipkit/platform/internal/service/deploy"
	"github.com/shipkit/platform/internal/service/feedback"
	"github.com/shipkit/platform/internal/service/installer"
	"github.com/shipkit/platform/internal/service/project"
	"github.com/shipkit/platform/internal/service/team"
	"github.com/shipkit/platform/internal/service/waitlist"
	"github.com/shipkit/platform/internal/vercel"
	"github.com/shipkit/platform/internal/ws"
	"github.com/shipkit/platform/pkg/config"
	"github.com/shipkit/platform/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()

	var teamCache *cache.Cache
	var installerCache *cache.Cache
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		c, err := cache.New(addr, cfg.RedisPassword, cfg.RedisDB, "shipkit", log)
		if err != nil {
			log.Warn("redis cache unavailable", "error", err)
		} else {
			teamCache = c
			installerCache = c
			defer c.Close()
		}
	}

	var mailer mail.Mailer = mail.LogMailer{Logger: log}
	if sg, err := mail.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName, cfg.SiteName, log); err == nil {
		mailer = sg
	} else {
		log.Info("sendgrid not configured, magic links go to the log")
	}

	gh := github.NewClient(cfg.GitHubAPIBase, cfg.GitHubToken)
	hosting := vercel.NewClient(cfg.VercelAPIBase, cfg.VercelToken, cfg.VercelTeamID)

	authSvc := auth.New(repo, mailer, log, cfg)
	teamSvc := team.New(repo, teamCache, log)
	projectSvc := project.New(repo, repo, log)
	apiKeySvc := apikey.New(repo, log)
	deploySvc := deploy.New(repo, repo, gh, hosting, hub, log, cfg)
	billingSvc := billing.New(repo, log, cfg)
	installSvc := installer.New(gh, gh, installerCache, log, cfg)
	feedbackSvc := feedback.New(repo, log)
	waitlistSvc := waitlist.New(repo, log)

	if watcher := deploy.NewWatcher(repo, hub, log, cfg); watcher != nil {
		go watcher.Run(ctx)
	}

	store := content.NewStore(cfg.ContentDir, log)
	if err := store.Load(); err != nil {
		log.Error("failed to load content", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := store.Watch(ctx); err != nil {
			log.Warn("content watcher stopped", "error", err)
		}
	}()

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:   log,
		Auth:     authSvc,
		Team:     teamSvc,
		Project:  projectSvc,
		Deploy:   deploySvc,
		APIKeys:  apiKeySvc,
		Billing:  billingSvc,
		Install:  installSvc,
		Content:  store,
		Feedback: feedbackSvc,
		Waitlist: waitlistSvc,
		Hub:      hub,
		Limiter:  limiter,
		DBHealth: pool.Ping,
		SiteURL:  cfg.SiteURL,
		SiteName: cfg.SiteName,
		HasBlog:  cfg.HasBlog,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
