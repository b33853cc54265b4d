package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"clob/internal/api"
	"clob/internal/book"
	"clob/internal/feed"
	"clob/internal/ledger"
)

func main() {
	port := flag.String("port", "8088", "server port")
	dbPath := flag.String("db", "clob.db", "SQLite database path (empty = in-memory ledger, no auth)")
	corsOrigins := flag.String("cors", "", "comma-separated allowed CORS origins (empty = allow all for dev)")
	pair := flag.String("pair", "ETH-USD", "trading pair name")
	baseAsset := flag.String("base", "ETH", "base asset symbol")
	quoteAsset := flag.String("quote", "USD", "quote asset symbol")
	maxSweep := flag.Int("max-sweep", book.DefaultMaxSweep, "max fills per market order sweep")
	feedInterval := flag.Duration("feed-interval", 2*time.Second, "depth broadcast interval")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if *debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	var led ledger.Ledger
	var store *ledger.Store
	if *dbPath != "" {
		var err error
		store, err = ledger.New(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("db", *dbPath).Msg("failed to initialize database")
		}
		led = store
		log.Info().Str("db", *dbPath).Msg("using SQLite ledger")
	} else {
		led = ledger.NewMem()
		log.Warn().Msg("using in-memory ledger, balances will not survive restart")
	}

	engine := book.New(book.Config{
		Pair:       *pair,
		BaseAsset:  *baseAsset,
		QuoteAsset: *quoteAsset,
		MaxSweep:   *maxSweep,
	}, led)

	server := api.NewServer(engine, led, store, log)

	if *corsOrigins != "" {
		origins := strings.Split(*corsOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		server.SetCORSOrigins(origins)
		log.Info().Strs("origins", origins).Msg("CORS restricted")
	}

	depthFeed := feed.New(engine, server.Hub(), *feedInterval, log)
	depthFeed.Start()

	addr := ":" + *port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", addr).
			Str("pair", *pair).
			Msg("order book server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	if err := depthFeed.Stop(); err != nil {
		log.Error().Err(err).Msg("feed stop error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	server.Shutdown()

	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
		}
	}

	log.Info().Msg("shutdown complete")
}
