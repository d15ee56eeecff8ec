package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civitec.org/internal/audit"
	"civitec.org/internal/config"
	"civitec.org/internal/httpapi"
	"civitec.org/internal/identity"
	"civitec.org/internal/invite"
	"civitec.org/internal/mail"
	"civitec.org/internal/obs"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.LogRequest(map[string]any{"level": "fatal", "msg": "config load failed", "error": err.Error()})
		os.Exit(1)
	}

	obs.Init()

	var (
		db          *sql.DB
		users       identity.Store
		inviteStore invite.Store
		auditStore  audit.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			obs.LogRequest(map[string]any{"level": "fatal", "msg": "database open failed", "error": err.Error()})
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		users = identity.NewPGStore(db)
		inviteStore = invite.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		obs.LogRequest(map[string]any{"level": "warn", "msg": "CIVITEC_PG_DSN not set; using in-memory stores"})
		users = identity.NewInMemory()
		inviteStore = invite.NewInMemory()
		auditStore = audit.NewInMemory()
	}

	var sender invite.Notifier
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
	} else {
		obs.LogRequest(map[string]any{"level": "warn", "msg": "SMTP not configured; invites are logged to console"})
		sender = mail.LogSender{}
	}

	var signer *identity.TokenSigner
	if cfg.AuthSecret != "" {
		signer, err = identity.NewTokenSigner(cfg.AuthSecret, cfg.TokenTTL)
		if err != nil {
			obs.LogRequest(map[string]any{"level": "fatal", "msg": "token signer setup failed", "error": err.Error()})
			os.Exit(1)
		}
	} else {
		obs.LogRequest(map[string]any{"level": "warn", "msg": "CIVITEC_AUTH_SECRET not set; authenticated routes are disabled"})
	}

	invites := invite.NewService(inviteStore, users, sender,
		invite.WithTTL(cfg.InviteTTL()),
		invite.WithBaseURL(cfg.FrontendBaseURL),
	)
	auditor := audit.NewRecorder(auditStore)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, users, invites, signer, auditor)
	api.SetRateLimit(cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.LogRequest(map[string]any{"level": "info", "msg": "listening", "addr": cfg.Addr, "version": version})
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		obs.LogRequest(map[string]any{"level": "info", "msg": "shutting down", "signal": sig.String()})
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.LogRequest(map[string]any{"level": "fatal", "msg": "server failed", "error": err.Error()})
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obs.LogRequest(map[string]any{"level": "error", "msg": "graceful shutdown failed", "error": err.Error()})
		os.Exit(1)
	}
	obs.LogRequest(map[string]any{"level": "info", "msg": "stopped"})
}
