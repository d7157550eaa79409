// Package main is the entry point for the Mopstar API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mopstar/mopstar-api/internal/auth"
	"github.com/mopstar/mopstar-api/internal/blog"
	"github.com/mopstar/mopstar-api/internal/config"
	"github.com/mopstar/mopstar-api/internal/contact"
	"github.com/mopstar/mopstar-api/internal/httpapi"
	"github.com/mopstar/mopstar-api/internal/logging"
	"github.com/mopstar/mopstar-api/internal/mailer"
	"github.com/mopstar/mopstar-api/internal/media"
	"github.com/mopstar/mopstar-api/internal/provider"
	"github.com/mopstar/mopstar-api/internal/provider/graph"
	"github.com/mopstar/mopstar-api/internal/provider/ses"
	"github.com/mopstar/mopstar-api/internal/provider/smtp"
	"github.com/mopstar/mopstar-api/internal/provider/stdout"
	"github.com/mopstar/mopstar-api/internal/ratelimit"
	apitls "github.com/mopstar/mopstar-api/internal/tls"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	selfSigned := flag.Bool("self-signed", false, "serve HTTPS with a generated development certificate")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash of the given admin password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, *selfSigned, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("mopstar-api stopped")
}

func run(ctx context.Context, cfg *config.Config, selfSigned bool, logger *slog.Logger) error {
	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()
	go limiter.Run(ctx, cfg.RateLimit.SweepInterval)

	loc := time.UTC
	if cfg.Mail.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Mail.Timezone); err != nil {
			return fmt.Errorf("invalid mail timezone: %w", err)
		}
	}
	dispatcher, err := mailer.New(prov, mailer.Config{
		BusinessName: cfg.Contact.BusinessName,
		Sender:       cfg.MailSender(),
		Recipient:    cfg.Mail.Receiver,
		Location:     loc,
	})
	if err != nil {
		return err
	}

	contactSvc := contact.NewService(limiter, dispatcher, contact.ServiceConfig{
		SendAttempts:    cfg.Mail.SendAttempts,
		RetryDelay:      cfg.Mail.RetryDelay,
		DispatchTimeout: cfg.Mail.DispatchTimeout,
	})

	blogStore, closeBlog, err := newBlogStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlog()

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	var uploader media.Uploader
	if cfg.Media.Bucket != "" {
		u, err := media.NewS3Uploader(ctx, media.Config{
			Bucket:        cfg.Media.Bucket,
			Region:        cfg.Media.Region,
			Prefix:        cfg.Media.Prefix,
			PublicBaseURL: cfg.Media.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create image uploader: %w", err)
		}
		uploader = u
	}

	tlsConfig, err := apitls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, selfSigned)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Contact:  contactSvc,
		Blog:     blog.NewService(blogStore),
		Auth:     authenticator,
		Uploader: uploader,
		Logger:   logger,
	}, httpapi.Options{
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		TrustProxy:      cfg.HTTP.TrustProxy,
		MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
		MaxUploadBytes:  cfg.HTTP.MaxUploadBytes,
		FallbackContact: cfg.Contact.FallbackContact,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting mopstar-api",
		"listen", cfg.HTTP.Listen,
		"provider", prov.Name(),
		"rate_limit_backend", cfg.RateLimit.Backend,
		"rate_limit", fmt.Sprintf("%d/%s", cfg.RateLimit.Max, cfg.RateLimit.Window),
		"admin_enabled", authenticator != nil,
		"uploads_enabled", uploader != nil,
		"tls", tlsConfig != nil,
	)

	// Startup check only; every submission verifies again before sending.
	if err := prov.Verify(ctx); err != nil {
		logger.Error("mail service misconfigured", "provider", prov.Name(), "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// selectProvider builds the configured mail delivery backend.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Mail.Provider {
	case config.ProviderSMTP:
		slog.Info("using SMTP provider", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port, "ssl", cfg.SMTP.SSL)
		return smtp.New(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			SSL:      cfg.SMTP.SSL,
			Timeout:  cfg.SMTP.Timeout,
		})

	case config.ProviderSES:
		slog.Info("using AWS SES provider", "region", cfg.SES.Region)
		p, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderGraph:
		slog.Info("using Microsoft Graph provider", "sender", logging.RedactEmail(cfg.Graph.Sender))
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case config.ProviderStdout:
		slog.Info("using stdout provider")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}
}

func newLimiter(ctx context.Context, cfg *config.Config) (*ratelimit.Limiter, func(), error) {
	if cfg.RateLimit.Backend == config.BackendRedis {
		store, err := ratelimit.NewRedisStoreFromURL(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := store.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		}
		return ratelimit.New(store, cfg.RateLimit.Window, cfg.RateLimit.Max), closeFn, nil
	}
	return ratelimit.New(ratelimit.NewMemoryStore(), cfg.RateLimit.Window, cfg.RateLimit.Max), func() {}, nil
}

func newBlogStore(ctx context.Context, cfg *config.Config) (blog.Store, func(), error) {
	if cfg.Database.URL == "" {
		slog.Warn("DATABASE_URL not set, blog posts are kept in memory")
		return blog.NewMemoryStore(), func() {}, nil
	}

	db, err := blog.OpenPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	store := blog.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

// newAuthenticator returns nil when no administrator is configured, which
// leaves admin login and blog writes unmounted.
func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	if cfg.Admin.Email == "" || cfg.Admin.JWTSecret == "" {
		slog.Warn("admin credentials not set, blog administration is disabled")
		return nil, nil
	}
	return auth.New(auth.Config{
		Email:        cfg.Admin.Email,
		Password:     cfg.Admin.Password,
		PasswordHash: cfg.Admin.PasswordHash,
		Secret:       cfg.Admin.JWTSecret,
		TokenTTL:     cfg.Admin.TokenTTL,
	})
}
