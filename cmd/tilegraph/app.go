package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/config"
	"github.com/fxnlabs/tilegraph/internal/logger"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// appOptions are shared by every command.
func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newMetricsServer,
		),
	)
}

// libraryOption adds a local runtime with its codelet library, for commands
// that work on one rank. bench builds a runtime per rank instead.
var libraryOption = fx.Provide(newLibrary)

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Logger.Verbosity)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// Syncing stderr fails on some terminals.
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func newLibrary(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*codelet.Library, error) {
	rt, err := taskgraph.New(cfg.NodeOptions().Runtime, log)
	if err != nil {
		return nil, err
	}
	lib, err := codelet.NewLibrary(rt)
	if err != nil {
		return nil, multierr.Append(err, rt.Shutdown())
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return multierr.Append(lib.Close(), rt.Shutdown())
		},
	})
	return lib, nil
}

// metricsServer serves /metrics while the app runs, when an address is set.
type metricsServer struct {
	srv  *http.Server
	addr string
}

func newMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *metricsServer {
	m := &metricsServer{}
	if cfg.Metrics.ListenAddress == "" {
		return m
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.srv = &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", m.srv.Addr)
			if err != nil {
				return err
			}
			m.addr = ln.Addr().String()
			log.Info("Serving metrics", zap.String("address", m.addr))
			go func() {
				if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return m.srv.Shutdown(ctx)
		},
	})
	return m
}

// Addr returns the bound address, empty when metrics are disabled.
func (m *metricsServer) Addr() string {
	return m.addr
}

// runApp starts an app with the shared options, runs fn and stops the app.
func runApp(ctx context.Context, cfg *config.Config, fn func() error, options ...fx.Option) (err error) {
	app := fx.New(appOptions(cfg), fx.Options(options...))
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, app.Stop(context.Background()))
	}()
	return fn()
}
