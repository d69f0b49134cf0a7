package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"campaignd/internal/awsutil"
	"campaignd/internal/config"
	"campaignd/internal/dispatch"
	"campaignd/internal/domain"
	"campaignd/internal/lock"
	"campaignd/internal/providers/relay"
	"campaignd/internal/providers/ses"
	"campaignd/internal/providers/smtp"
	"campaignd/internal/recipients"
	"campaignd/internal/recorder"
	"campaignd/internal/service"
	"campaignd/internal/store/pg"
	"campaignd/internal/tracking"
)

// Runtime is a fully wired dispatch engine plus the dependency checks that
// back /readyz.
type Runtime struct {
	DB      *pgxpool.Pool
	Store   *pg.Store
	Service *service.CampaignService
	Checks  []func(ctx context.Context) error

	redis *redis.Client
}

func Open(ctx context.Context, cfg config.DispatchConfig) (*Runtime, error) {
	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheck,
	})
	if err != nil {
		return nil, fmt.Errorf("db pool: %w", err)
	}
	st := pg.New(db)

	rt := &Runtime{DB: db, Store: st}
	rt.Checks = append(rt.Checks, st.Ping)

	transport, err := NewTransport(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	newLock := lock.PGFactory(db)
	if cfg.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		newLock = lock.RedisFactory(rt.redis, cfg.RunLockTTL)
		rt.Checks = append(rt.Checks, func(ctx context.Context) error { return rt.redis.Ping(ctx).Err() })
	}

	rt.Service = &service.CampaignService{
		Store:        st,
		Resolver:     &recipients.Resolver{Store: st},
		Dispatcher:   &dispatch.Dispatcher{BatchSize: cfg.BatchSize},
		Instrumentor: tracking.New(cfg.TrackingBaseURL, cfg.TrackingSigningKey),
		Recorder:     recorder.New(st),
		Transport: &dispatch.Guarded{
			Name:      cfg.Transport,
			Transport: transport,
			Limiter:   rate.NewLimiter(rate.Limit(cfg.SendRPS), cfg.SendBurst),
			Breaker:   dispatch.NewBreaker(cfg.Transport, cfg.BreakerFailures, cfg.BreakerTimeout),
			Timeout:   cfg.SendTimeout,
		},
		NewLock: newLock,
		LockTTL: cfg.RunLockTTL,
	}
	return rt, nil
}

func (rt *Runtime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	rt.DB.Close()
}

// NewTransport builds the outbound provider selected by TRANSPORT.
func NewTransport(ctx context.Context, cfg config.DispatchConfig) (domain.Transport, error) {
	switch cfg.Transport {
	case config.TransportSES:
		client, err := awsutil.NewSESClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		return &ses.Client{API: client, ConfigurationSet: cfg.SESConfigurationSet}, nil
	case config.TransportSMTP:
		return smtp.New(smtp.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	case config.TransportRelay:
		return &relay.Client{
			BaseURL: cfg.RelayBaseURL,
			APIKey:  cfg.RelayAPIKey,
			HTTP:    &http.Client{Timeout: cfg.SendTimeout + cfg.SendTimeout/2},
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
