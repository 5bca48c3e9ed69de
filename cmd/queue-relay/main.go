package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/mpmail/internal/config"
	"github.com/sungwon/mpmail/internal/logger"
	"github.com/sungwon/mpmail/internal/provider"
	"github.com/sungwon/mpmail/internal/relay"
)

const (
	// maxDrainResponse bounds one drained batch. MaxBatchSize jobs of a few
	// hundred KiB each fit comfortably.
	maxDrainResponse = 256 << 20
	drainTimeout     = 60 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging, "queue-relay")
	log.Info().Msg("starting queue relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("queue relay failed")
	}
	log.Info().Msg("queue relay stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	rc := cfg.Relay
	if rc.DrainURL == "" {
		return errors.New("relay.drain_url is required")
	}
	if rc.Delivery.Type == "queue" {
		return errors.New("relay.delivery.provider cannot be queue")
	}

	p, err := provider.NewProvider(rc.Delivery, provider.Deps{Logger: log})
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	if p.GetName() == "stdout" {
		log.Warn().Msg("relay delivers to stdout; drained jobs are only logged")
	}
	if rc.Token == "" {
		log.Warn().Msg("relay.token is not set; drain requests are sent without a bearer token")
	}

	client := relay.NewDrainClient(rc.DrainURL, rc.Token,
		provider.NewHTTPClientWithLimit(drainTimeout, maxDrainResponse))

	r := relay.New(client, p, relay.NewRetryStrategy(rc.MaxRetries), relay.Config{
		Interval:      rc.Interval,
		BatchSize:     rc.BatchSize,
		Concurrency:   rc.Concurrency,
		RatePerSecond: rc.RatePerSecond,
		Burst:         rc.Burst,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})

	if rc.MetricsAddr != "" {
		mux := chi.NewRouter()
		mux.Method(http.MethodGet, "/metrics", promhttp.Handler())
		mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{Addr: rc.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
