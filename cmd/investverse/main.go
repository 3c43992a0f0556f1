package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/investverse/internal/api"
	"github.com/trogers1052/investverse/internal/config"
	"github.com/trogers1052/investverse/internal/database"
	"github.com/trogers1052/investverse/internal/groups"
	"github.com/trogers1052/investverse/internal/kafka"
	"github.com/trogers1052/investverse/internal/logging"
	"github.com/trogers1052/investverse/internal/portfolio"
	"github.com/trogers1052/investverse/internal/quotes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "json")
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Msg("Starting investverse")

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	quoteProvider, closeQuotes := buildQuoteProvider(cfg, log)
	defer closeQuotes()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer producer.Close()

	service := portfolio.NewService(db, db, producer, quoteProvider, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.Kafka.ConsumerEnabled {
		consumer := kafka.NewChatConsumer(
			cfg.Kafka.Brokers,
			cfg.Kafka.ChatTopic,
			cfg.Kafka.GroupID,
			cfg.Trading.DefaultPortfolioID,
			db,
			service,
			log,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Chat consumer stopped with error")
			}
		}()
	}

	groupDir := groups.NewService(db, service, log)
	handler := api.NewHandler(service, groupDir, quoteProvider, db, producer, db, log)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wg.Wait()

	log.Info().Msg("Stopped")
}

// buildQuoteProvider assembles Alpha Vantage behind an optional Redis cache,
// or the static demo table when no API key is configured. Every lookup is
// bounded by the trading quote timeout.
func buildQuoteProvider(cfg *config.Config, log zerolog.Logger) (quotes.Provider, func()) {
	closeFn := func() {}

	if cfg.AlphaVantage.APIKey == "" {
		log.Warn().Msg("ALPHAVANTAGE_API_KEY not set, using demo prices")
		return quotes.WithTimeout(quotes.NewStatic(quotes.DemoPrices()), cfg.Trading.QuoteTimeout), closeFn
	}

	av, err := quotes.NewAlphaVantage(quotes.AlphaVantageOptions{
		APIKey:            cfg.AlphaVantage.APIKey,
		BaseURL:           cfg.AlphaVantage.BaseURL,
		RequestsPerMinute: cfg.AlphaVantage.RequestsPerMinute,
		Timeout:           cfg.AlphaVantage.Timeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Alpha Vantage client")
	}

	var provider quotes.Provider = av
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, quotes will bypass the cache until it recovers")
		}

		provider = quotes.NewCache(av, rdb, cfg.Redis.QuoteTTL, log)
		closeFn = func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		}
	}

	return quotes.WithTimeout(provider, cfg.Trading.QuoteTimeout), closeFn
}
