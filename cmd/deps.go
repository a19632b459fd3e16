package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-webhook/internal/config"
	"github.com/sells-group/lead-webhook/internal/crm"
	"github.com/sells-group/lead-webhook/internal/pipelines"
	"github.com/sells-group/lead-webhook/internal/ratelimit"
	"github.com/sells-group/lead-webhook/internal/store"
	"github.com/sells-group/lead-webhook/pkg/ghl"
)

func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "", "none":
		return store.Noop{}, nil
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "submissions.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{
			MaxConns: c.MaxConns,
			MinConns: c.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

// limiterEnv is a configured limiter plus its lifecycle hooks.
type limiterEnv struct {
	limiter ratelimit.Limiter
	// run is the background loop, nil when the backend needs none.
	run   func(context.Context) error
	close func() error
}

func initLimiter(ctx context.Context, c config.RateLimitConfig) (*limiterEnv, error) {
	rlCfg := ratelimit.Config{
		MaxRequests:   c.MaxRequests,
		Window:        c.Window(),
		MaxKeys:       c.MaxKeys,
		SweepInterval: c.SweepInterval(),
	}

	switch c.Backend {
	case "", "memory":
		m, err := ratelimit.NewMemory(rlCfg)
		if err != nil {
			return nil, err
		}
		return &limiterEnv{limiter: m, run: m.Run, close: func() error { return nil }}, nil
	case "redis":
		r, err := ratelimit.NewRedisFromURL(ctx, c.RedisURL, rlCfg)
		if err != nil {
			return nil, err
		}
		return &limiterEnv{limiter: r, close: r.Close}, nil
	default:
		return nil, eris.Errorf("unsupported ratelimit backend: %s", c.Backend)
	}
}

func initGateway(c config.CRMConfig) (*crm.Gateway, error) {
	table := pipelines.Builtin()
	if c.PipelinesFile != "" {
		t, err := pipelines.Load(c.PipelinesFile)
		if err != nil {
			return nil, err
		}
		table = t
	}

	strategy, err := crm.ParseDuplicateStrategy(c.DuplicateStrategy)
	if err != nil {
		return nil, err
	}

	var opts []ghl.Option
	if c.BaseURL != "" {
		opts = append(opts, ghl.WithBaseURL(c.BaseURL))
	}
	if c.APIVersion != "" {
		opts = append(opts, ghl.WithAPIVersion(c.APIVersion))
	}
	if c.TimeoutSecs > 0 {
		opts = append(opts, ghl.WithTimeout(c.Timeout()))
	}
	if c.RequestsPerSecond > 0 {
		opts = append(opts, ghl.WithRateLimit(c.RequestsPerSecond))
	}
	client := ghl.NewClient(c.APIKey, c.LocationID, opts...)

	gw, err := crm.New(client, table, crm.Config{
		ContactSource:     c.ContactSource,
		OpportunitySource: c.OpportunitySource,
		Duplicates:        strategy,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("crm gateway ready",
		zap.String("base_url", c.BaseURL),
		zap.String("duplicate_strategy", string(strategy)),
		zap.Bool("custom_pipelines", c.PipelinesFile != ""),
		zap.Int("pipeline_services", table.Services()),
		zap.String("default_pipeline", table.DefaultID()),
	)
	return gw, nil
}
