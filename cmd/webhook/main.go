package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"epn-webhook/internal/adapters/alert"
	"epn-webhook/internal/adapters/epnbz"
	"epn-webhook/internal/adapters/repo"
	"epn-webhook/internal/domain"
	"epn-webhook/internal/infra/cache"
	"epn-webhook/internal/infra/config"
	"epn-webhook/internal/infra/db"
	httpinfra "epn-webhook/internal/infra/http"
	"epn-webhook/internal/infra/log"
	"epn-webhook/internal/infra/metrics"
	"epn-webhook/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("webhook: нет подключения к БД")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool, cfg.TableName, cfg.Store.QueryTimeout)
	if err := store.InitSchema(ctx); err != nil {
		// Без схемы приём отвечает 503, сервис при этом продолжает стартовать.
		logger.Error().Err(err).Msg("webhook: схема БД не инициализирована")
	}

	var redisCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		redisCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	notifier := buildNotifier(cfg, redisCache, logger)

	if cfg.WebhookSecret == "" {
		logger.Warn().Msg("webhook: WEBHOOK_SECRET_TOKEN не задан, доставки будут отклоняться")
	}
	logger.Info().
		Bool("secret_configured", cfg.WebhookSecret != "").
		Bool("email_alerts", cfg.EmailConfigured()).
		Bool("telegram_alerts", cfg.TelegramConfigured()).
		Bool("alert_throttle", redisCache != nil).
		Str("table", cfg.TableName).
		Msg("webhook: конфигурация загружена")

	svc := ingest.NewService(cfg.WebhookSecret, epnbz.PartnerID, store, notifier, cfg.Alerts.Timeout, logger)
	svc.RegisterPartner(epnbz.PartnerID, epnbz.New(cfg.WebhookSecret, logger))

	info := httpinfra.ServiceInfo{
		Name:               "epn-webhook",
		Version:            "1.0.0",
		SecretConfigured:   cfg.WebhookSecret != "",
		EmailConfigured:    cfg.EmailConfigured(),
		TelegramConfigured: cfg.TelegramConfigured(),
	}
	handler := httpinfra.NewServer(svc, info, cfg.Server.MaxBodyBytes, logger).Router()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.Metrics.Addr)
	}

	go func() {
		logger.Info().Int("port", cfg.Port).Msg("webhook: старт")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("webhook: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("webhook: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildNotifier собирает цепочку каналов оповещений из конфига: почта и
// Telegram в fanout, поверх — троттлинг через Redis, если он настроен.
func buildNotifier(cfg config.AppConfig, redisCache *cache.RedisCache, logger zerolog.Logger) domain.Notifier {
	var sinks []domain.Notifier
	if cfg.EmailConfigured() {
		sinks = append(sinks, alert.NewEmail(alert.EmailConfig{
			Host:     cfg.Alerts.SMTPHost,
			Port:     cfg.Alerts.SMTPPort,
			User:     cfg.Alerts.SMTPUser,
			Password: cfg.Alerts.SMTPPassword,
			From:     cfg.Alerts.EmailFrom,
			To:       cfg.Alerts.EmailTo,
			Timeout:  cfg.Alerts.Timeout,
		}, logger))
	}
	if cfg.TelegramConfigured() {
		client := &http.Client{Timeout: cfg.Alerts.Timeout}
		botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Alerts.TGToken, tgbotapi.APIEndpoint, client)
		if err != nil {
			logger.Error().Err(err).Msg("webhook: не удалось создать бота для оповещений")
		} else {
			sinks = append(sinks, alert.NewTelegram(botAPI, cfg.Alerts.TGChatID, logger))
		}
	}
	if len(sinks) == 0 {
		return alert.NewNop(logger)
	}
	var notifier domain.Notifier = alert.NewFanout(sinks...)
	if redisCache != nil {
		notifier = alert.NewThrottled(notifier, redisCache, cfg.Alerts.ThrottleTTL, logger)
	}
	return notifier
}
