package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/mpmail/internal/api"
	"github.com/sungwon/mpmail/internal/auth"
	"github.com/sungwon/mpmail/internal/config"
	"github.com/sungwon/mpmail/internal/delivery"
	"github.com/sungwon/mpmail/internal/logger"
	"github.com/sungwon/mpmail/internal/msgstore"
	"github.com/sungwon/mpmail/internal/provider"
	"github.com/sungwon/mpmail/internal/queue"
	smtpserver "github.com/sungwon/mpmail/internal/smtp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-token" {
		if err := hashToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "hash-token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging, "mailer-api")
	log.Info().Msg("starting mailer API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("mailer API failed")
	}
	log.Info().Msg("mailer API stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := msgstore.New(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(store, log)
	log.Info().Str("store", cfg.Store.Type).Msg("store ready")

	p, err := provider.NewProvider(cfg.Delivery.ProviderConfig, provider.Deps{
		Store:  store,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	log.Info().Str("provider", p.GetName()).Msg("provider ready")

	svc := delivery.NewService(p, cfg.Delivery.Sender, log)
	drainer := queue.NewDrainer(store, cfg.Drain.DrainConfig, log)

	drainGate := auth.NewTokenGate(cfg.Drain.Token)
	if drainGate.Open() {
		log.Warn().Msg("drain token is not set; POST /queue/drain is open to anyone, set MPMAIL_DRAIN_TOKEN in production")
	} else if !drainGate.Hashed() {
		log.Info().Msg("drain token is stored in plain text; consider storing a bcrypt hash (mailer-api hash-token)")
	}
	sendGate := auth.NewTokenGate(cfg.API.SendToken)
	if sendGate.Open() {
		log.Warn().Msg("send token is not set; POST /api/v1/messages is open to anyone")
	}

	health := provider.NewHealthChecker()
	health.Add("store", store)
	health.Add("provider:"+p.GetName(), p)
	health.Start(ctx)
	defer health.Stop()

	router := api.NewRouter(api.RouterConfig{
		Log:            log,
		Drainer:        drainer,
		DrainGate:      drainGate,
		Sender:         svc,
		SendGate:       sendGate,
		Health:         health,
		RequestTimeout: cfg.API.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	var smtpSrv *gosmtp.Server
	if cfg.SMTP.Enabled {
		if smtpSrv, err = newSMTPServer(cfg.SMTP, svc, log); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	if smtpSrv != nil {
		g.Go(func() error {
			log.Info().Str("addr", smtpSrv.Addr).Msg("SMTP listener started")
			if err := smtpSrv.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				return fmt.Errorf("smtp listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := smtpSrv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("SMTP listener shutdown error")
			}
			return nil
		})
	}

	return g.Wait()
}

func newSMTPServer(cfg smtpserver.Config, sender smtpserver.Sender, log zerolog.Logger) (*gosmtp.Server, error) {
	backend := smtpserver.NewBackend(sender, cfg, log)
	if !backend.AuthRequired() {
		log.Warn().Msg("smtp.password is not set; the SMTP listener accepts mail without AUTH")
	}

	s := smtpserver.NewServer(backend, cfg)
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load SMTP TLS certificate: %w", err)
		}
		s.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		s.EnableSMTPUTF8 = true
	} else if backend.AuthRequired() && !cfg.AllowInsecureAuth {
		log.Warn().Msg("SMTP listener has no TLS certificate; clients cannot AUTH until smtp.tls_cert_file is set")
	}
	return s, nil
}

// hashToken prints a bcrypt hash of the given token, or of a freshly
// generated one when no token is given. The plain token goes to the
// consumer, the hash into drain.token.
func hashToken(w io.Writer, args []string) error {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		generated, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		token = generated
		fmt.Fprintf(w, "token: %s\n", token)
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "hash:  %s\n", hash)
	return nil
}

func closeStore(store msgstore.Store, log zerolog.Logger) {
	switch c := store.(type) {
	case io.Closer:
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	case interface{ Close() }:
		c.Close()
	}
}
