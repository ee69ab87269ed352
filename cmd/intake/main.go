// Command intake runs the inbound message pipeline: IMAP mailbox sessions and
// the Telegram webhook feed one task materializer, and a Gin HTTP server
// exposes the webhook, the binding API, health, and metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/cleanops/go-intake-backend/internal/config"
	httpapi "github.com/cleanops/go-intake-backend/internal/http"
	"github.com/cleanops/go-intake-backend/internal/mailbox"
	"github.com/cleanops/go-intake-backend/internal/notify"
	"github.com/cleanops/go-intake-backend/internal/observability"
	"github.com/cleanops/go-intake-backend/internal/repo"
	"github.com/cleanops/go-intake-backend/internal/services"
	"github.com/cleanops/go-intake-backend/internal/sysutil"
	"github.com/cleanops/go-intake-backend/internal/telegram"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// receiptPurgeInterval is how often expired intake receipts are removed.
const receiptPurgeInterval = time.Hour

func main() {
	// Local development convenience; ignored when the file is absent.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Info().Str("version", version).Msg("intake starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("automigrate failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("gorm tracing plugin failed")
		}
	}

	mailer := notify.NewMailer(cfg.SMTP)
	bot := notify.NewBotClient(cfg.Telegram)

	materializer := services.NewMaterializer(db, cfg.DedupTTL)
	intake := &services.EmailIntake{
		Resolver:     services.NewResolver(db),
		Materializer: materializer,
		Mailer:       mailer,
		Bot:          bot,
		BaseURL:      cfg.BaseURL,
	}
	dispatcher := telegram.NewDispatcher(db, bot, materializer)

	var session *mailbox.Session
	if cfg.Mailbox.Enabled {
		profile := mailbox.GenericProfile()
		if strings.HasSuffix(strings.ToLower(cfg.Mailbox.Host), "mail.ru") {
			profile = mailbox.MailRuProfile()
		}
		dialer := mailbox.NewDialer(mailbox.DialConfig{
			Host:     cfg.Mailbox.Host,
			Port:     cfg.Mailbox.Port,
			TLS:      cfg.Mailbox.TLS,
			User:     cfg.Mailbox.User,
			Password: cfg.Mailbox.Password,
		})
		session = mailbox.NewSession(profile, cfg.Mailbox.Folder, dialer, intake.Handler(profile.Provider))
		session.Start(ctx)
		log.Info().
			Str("provider", profile.Provider).
			Str("host", cfg.Mailbox.Host).
			Str("folder", cfg.Mailbox.Folder).
			Msg("mailbox session started")
	} else {
		log.Warn().Msg("mailbox credentials not set, email channel disabled")
	}

	// Expired receipts only block storage, never correctness; purge lazily.
	go purgeReceipts(ctx, db)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, dispatcher, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if session != nil {
		if err := session.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("mailbox session stop failed")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("database close failed")
		}
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("intake stopped")
}

// purgeReceipts deletes expired intake receipts on a fixed interval until ctx
// is cancelled.
func purgeReceipts(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(receiptPurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpiredReceipts(ctx, db, time.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("receipt purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired receipts removed")
			}
		}
	}
}
