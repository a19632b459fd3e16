package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-webhook/internal/config"
	"github.com/sells-group/lead-webhook/internal/webhook"
)

const (
	readHeaderTimeout = 10 * time.Second
	// One submission may spend up to three sequential 30s CRM calls.
	shutdownTimeout = 100 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initServer(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           env.router,
			ReadHeaderTimeout: readHeaderTimeout,
		}

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("version", version),
			zap.String("ratelimit_backend", cfg.RateLimit.Backend),
			zap.String("store_driver", cfg.Store.Driver),
		)
		return runServer(ctx, srv, env.background...)
	},
}

// serverEnv holds everything serve wires together.
type serverEnv struct {
	router     http.Handler
	background []func(context.Context) error
	closers    []func() error
}

// Close releases the limiter and ledger connections.
func (e *serverEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			zap.L().Warn("serve: close failed", zap.Error(err))
		}
	}
}

func initServer(ctx context.Context, c *config.Config) (*serverEnv, error) {
	for _, key := range c.MissingSecrets() {
		zap.L().Error("serve: crm credential not configured, submissions will fail", zap.String("key", key))
	}

	env := &serverEnv{}

	ledger, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, ledger.Close)
	if err := ledger.Migrate(ctx); err != nil {
		env.Close()
		return nil, err
	}

	lim, err := initLimiter(ctx, c.RateLimit)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, lim.close)
	if lim.run != nil {
		env.background = append(env.background, lim.run)
	}

	gateway, err := initGateway(c.CRM)
	if err != nil {
		env.Close()
		return nil, err
	}

	h := webhook.NewHandler(gateway, lim.limiter, ledger, webhook.Config{
		APIKeyConfigured:     c.CRM.APIKey != "",
		LocationIDConfigured: c.CRM.LocationID != "",
		ScriptPath:           c.Server.ScriptPath,
		Version:              version,
	})
	env.router = webhook.NewRouter(h, webhook.RouterConfig{TrustProxy: c.Server.TrustProxy})
	return env, nil
}

// runServer serves until ctx is done, then shuts down gracefully. Background
// loops share the server's lifetime.
func runServer(ctx context.Context, srv *http.Server, background ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
	})

	for _, fn := range background {
		g.Go(func() error { return fn(gctx) })
	}

	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
