package scanner

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"rsi-divergence/config"
	"rsi-divergence/internal/api"
	"rsi-divergence/internal/gateway"
	"rsi-divergence/internal/metrics"
	"rsi-divergence/internal/model"
	"rsi-divergence/internal/notification"
	"rsi-divergence/internal/source"
	"rsi-divergence/internal/store/redis"
	"rsi-divergence/internal/store/sqlite"
	"rsi-divergence/pkg/smartconnect"
)

const (
	livenessInterval   = 30 * time.Second
	breakerMaxFailures = 3
	breakerReset       = 5 * time.Minute
	cacheRetainFactor  = 2 // cache keeps twice the lookback
)

// Options selects how much of the service is wired.
type Options struct {
	// DryRun delivers signals to the log only and neither loads nor saves
	// dedup state. Used by the one-shot scan command.
	DryRun bool
}

// Service wires the scanner to its source, notifiers and HTTP surface.
type Service struct {
	cfg  *config.Config
	opts Options

	Scanner  *Scanner
	Hub      *gateway.Hub
	Health   *metrics.HealthStatus
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	api    *smartconnect.Client
	store  *sqlite.Store
	rdb    *goredis.Client
	server *metrics.Server
}

// NewService builds every component from cfg. cfg must be valid.
func NewService(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		opts:     opts,
		Health:   metrics.NewHealthStatus(),
		Registry: prometheus.NewRegistry(),
		Hub:      gateway.NewHub(0),
	}
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.Metrics = metrics.NewMetrics(s.Registry)

	s.api = smartconnect.New(smartconnect.Config{APIKey: cfg.AngelAPIKey})
	var src model.CandleSource = source.NewAngel(s.api, source.AngelConfig{
		ClientID:   cfg.AngelClientID,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
		Retries:    cfg.FetchRetries,
	})

	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open candle cache")
		}
		s.store = store
		s.Health.SetSQLiteOK(true)
		src = source.NewCached(src, store, cacheRetainFactor*cfg.Lookback())
	}

	if cfg.RedisEnabled() {
		rcfg := redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		rdb, err := redis.Connect(ctx, rcfg)
		if err != nil {
			// not fatal; the client reconnects and /healthz reports it
			log.WithError(err).Warn("[service] redis unavailable at startup")
			rdb = redis.NewClient(rcfg)
			s.Health.SetRedisConnected(false)
		} else {
			s.Health.SetRedisConnected(true)
		}
		s.rdb = rdb
	}

	scanOpts := []Option{WithMetrics(s.Metrics), WithHealth(s.Health)}
	if s.rdb != nil && !opts.DryRun {
		scanOpts = append(scanOpts, WithStateStore(redis.NewStateStore(s.rdb, 0)))
	}

	s.Scanner = New(Config{
		Instrument:   cfg.Instrument(),
		Timeframe:    cfg.TF(),
		Lookback:     cfg.Lookback(),
		FetchTimeout: cfg.FetchTimeout,
		WindowSize:   cfg.WindowSize,
		Indicators:   cfg.Indicators(),
	}, src, s.buildNotifier(), scanOpts...)

	s.server = metrics.NewServer(cfg.MetricsAddr, s.Registry, s.Health, map[string]http.Handler{
		"/ws/signals": s.Hub,
		"/api/v1/":    api.NewRouter(s.Scanner),
	})
	return s, nil
}

func (s *Service) buildNotifier() *notification.Multi {
	multi := notification.NewMulti(notification.NewLogNotifier())
	multi.OnFailure = func(name string, err error) {
		if !errors.Is(err, notification.ErrCircuitOpen) {
			s.Metrics.NotifyFailures.WithLabelValues(name).Inc()
		}
	}
	if s.opts.DryRun {
		return multi
	}

	guard := func(n notification.Named) notification.Named {
		b := notification.NewBreaker(n, breakerMaxFailures, breakerReset)
		b.OnStateChange = func(name string, from, to notification.State) {
			s.Metrics.NotifierCircuitState.WithLabelValues(name).Set(float64(to))
			if to == notification.StateOpen {
				s.Metrics.NotifierCircuitTrips.WithLabelValues(name).Inc()
			}
		}
		return b
	}

	cfg := s.cfg
	if cfg.TelegramEnabled() {
		multi.Add(guard(notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)))
	}
	if cfg.SlackEnabled() {
		multi.Add(guard(notification.NewSlackNotifier(slack.New(cfg.SlackToken), cfg.SlackChannel)))
	}
	if cfg.WebhookURL != "" {
		multi.Add(guard(notification.NewWebhookNotifier(cfg.WebhookURL)))
	}
	if s.rdb != nil {
		multi.Add(guard(redis.NewSignalPublisher(s.rdb)))
	}
	multi.Add(s.Hub)

	log.Infof("[service] %d notifiers configured", multi.Len())
	return multi
}

// Run starts the HTTP server, liveness probes and the bar-close scheduler and
// blocks until ctx is cancelled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	spec, err := Schedule(s.cfg.TF(), s.cfg.CandleBuffer())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return errors.Wrap(s.server.Run(ctx), "metrics server")
	})

	if s.rdb != nil || s.store != nil {
		var rdb goredis.UniversalClient
		if s.rdb != nil {
			rdb = s.rdb
		}
		db := s.sqlDB()
		g.Go(func() error {
			s.Health.RunLivenessChecker(ctx, rdb, db, livenessInterval)
			return nil
		})
	}

	g.Go(func() error {
		return s.runScheduler(ctx, spec)
	})

	return g.Wait()
}

func (s *Service) runScheduler(ctx context.Context, spec string) error {
	if err := s.Scanner.LoadState(ctx); err != nil {
		log.WithError(err).Warn("[service] starting without dedup state")
	}

	// warm the indicators immediately instead of waiting for the next close
	if _, err := s.Scanner.RunCycle(ctx); err != nil {
		log.WithError(err).Warn("[service] initial cycle failed")
	}

	c := NewCron()
	if _, err := c.AddFunc(spec, func() {
		_, _ = s.Scanner.RunCycle(ctx)
	}); err != nil {
		return errors.Wrapf(err, "schedule %q", spec)
	}
	c.Start()
	log.Infof("[service] scanning %s %s on %q (IST)", s.cfg.Symbol, s.cfg.TF(), spec)

	<-ctx.Done()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(s.cfg.FetchTimeout + 5*time.Second):
		log.Warn("[service] scan still running at shutdown")
	}
	return nil
}

func (s *Service) sqlDB() *sql.DB {
	if s.store == nil {
		return nil
	}
	return s.store.DB()
}

// Close releases the cache, Redis, WebSocket clients and the broker session.
func (s *Service) Close() error {
	var err error
	s.Hub.Close()
	if s.api.HasSession() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = multierr.Append(err, s.api.TerminateSession(ctx, s.cfg.AngelClientID))
		cancel()
	}
	if s.rdb != nil {
		err = multierr.Append(err, s.rdb.Close())
	}
	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}
	return err
}
