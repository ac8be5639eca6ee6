package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	shopinstall "github.com/goliatone/go-shopinstall"
	"github.com/goliatone/go-shopinstall/adapters/gologger"
	"github.com/goliatone/go-shopinstall/adapters/prommetrics"
	"github.com/goliatone/go-shopinstall/core"
	"github.com/goliatone/go-shopinstall/inbound"
	sqlstore "github.com/goliatone/go-shopinstall/store/sql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCommand(baseLogger pslog.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the install HTTP server (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), baseLogger, cfg)
		},
	}
}

type server struct {
	http    *http.Server
	cleanup func() error
}

// buildServer wires the install service and its HTTP surface from cfg.
func buildServer(ctx context.Context, logger pslog.Logger, cfg core.Config) (*server, error) {
	loggers := gologger.NewProvider(logger)
	serviceOpts := []shopinstall.Option{shopinstall.WithLoggerProvider(loggers)}
	handlerOpts := []inbound.HandlerOption{inbound.WithLogger(loggers.GetLogger("inbound"))}

	if cfg.HTTP.Metrics {
		recorder := prommetrics.New(prometheus.NewRegistry())
		serviceOpts = append(serviceOpts, shopinstall.WithMetricsRecorder(recorder))
		handlerOpts = append(handlerOpts, inbound.WithMetricsHandler(recorder.Handler()))
	}

	cleanup := func() error { return nil }
	switch cfg.Store.Driver {
	case core.StoreDriverSQLite, core.StoreDriverPostgres:
		store, client, err := sqlstore.Open(ctx, cfg.Store, sqlstore.OpenOptions{
			ServiceName: cfg.ServiceName,
			TTL:         cfg.State.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open install state store: %w", err)
		}
		cleanup = client.Close
		serviceOpts = append(serviceOpts, shopinstall.WithInstallStateStore(store))
		logger.Info("install state store ready", "driver", cfg.Store.Driver)
	}

	svc, err := shopinstall.NewService(cfg, serviceOpts...)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	facade, err := shopinstall.NewFacade(svc, shopinstall.WithHandlerOptions(handlerOpts...))
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	return &server{
		http: &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           facade.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		cleanup: cleanup,
	}, nil
}

func runServe(ctx context.Context, logger pslog.Logger, cfg core.Config) error {
	srv, err := buildServer(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.cleanup(); err != nil {
			logger.Warn("close install state store", "error", err)
		}
	}()

	listener, err := net.Listen("tcp", srv.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.http.Addr, err)
	}
	logger.Info("listening",
		"addr", listener.Addr().String(),
		"base_url", cfg.BaseURL,
		"redirect_uri", cfg.RedirectURI(),
		"store", cfg.Store.Driver,
		"metrics", cfg.HTTP.Metrics,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.http.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
