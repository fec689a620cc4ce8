package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"inboxai/internal/api"
	"inboxai/internal/auth"
	"inboxai/internal/config"
	"inboxai/internal/logger"
	"inboxai/internal/querycache"
	"inboxai/internal/session"
	"inboxai/internal/store"
	"inboxai/internal/tui"
)

// app holds everything a command needs. Built once per invocation.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *store.SQLiteStore
	client   *api.Client
	session  *session.Store
	cache    *querycache.Cache
	callback *auth.Callback
	listener *auth.Listener
	redis    *querycache.Redis
	metrics  *http.Server
}

type options struct {
	configDir   string
	metricsAddr string
	listen      bool // start the loopback callback listener
}

func newApp(ctx context.Context, opts options) (*app, error) {
	dir := opts.configDir
	if dir == "" {
		d, err := config.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogPath(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	a.db, err = store.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	a.client, err = api.New(cfg.APIURL, api.WithLogger(log), api.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	a.session, err = session.New(ctx, a.db, a.client, log)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var backend querycache.Backend = querycache.NewMemory()
	if cfg.Redis.Addr != "" {
		r, err := querycache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, caching in memory", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			a.redis = r
			backend = r
		}
	}
	a.cache = querycache.New(backend, cfg.CacheTTL, log, querycache.WithScope(a.session.CacheScope))
	a.callback = auth.NewCallback(a.session, a.client.Auth, log)

	if opts.listen {
		l, err := auth.Listen(cfg.CallbackAddr, a.callback, a.client.Accounts, log)
		if err != nil {
			// Login still works by pasting the redirect URL.
			log.Warn("callback listener unavailable", zap.String("addr", cfg.CallbackAddr), zap.Error(err))
		} else {
			a.listener = l
		}
	}

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		a.metrics = &http.Server{Addr: opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server", zap.Error(err))
			}
		}()
	}

	ok = true
	return a, nil
}

func (a *app) deps() tui.Deps {
	return tui.Deps{
		API:      a.client,
		Session:  a.session,
		Cache:    a.cache,
		Callback: a.callback,
		Listener: a.listener,
		Config:   a.cfg,
		Log:      a.log,
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if a.listener != nil {
		_ = a.listener.Close(ctx)
	}
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}
