package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chebi2gene/internal/adapters/web"
	"chebi2gene/internal/blob"
	"chebi2gene/internal/export"
	"chebi2gene/internal/persistence"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ln, err := net.Listen("tcp", a.cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
			}
			return a.serve(ctx, ln)
		},
	}
}

// server is the assembled HTTP stack plus the resources it must release.
type server struct {
	handler http.Handler
	worker  *export.Worker
	ledger  persistence.Store
}

func (s *server) close(ctx context.Context) error {
	var errs []error
	if s.worker != nil {
		errs = append(errs, s.worker.Stop(ctx))
	}
	if s.ledger != nil {
		errs = append(errs, s.ledger.Close())
	}
	return errors.Join(errs...)
}

func (a *app) buildServer(ctx context.Context) (*server, error) {
	svc := a.service()
	srv := &server{}
	opts := web.Options{Links: a.cfg.Links, Metrics: a.metrics, Logger: a.log}

	if a.cfg.Exports.Enabled {
		blobs, err := blob.Open(ctx, a.cfg.Exports.Blob)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		ledger, err := persistence.Open(ctx, a.cfg.Exports.Ledger)
		if err != nil {
			return nil, fmt.Errorf("open export ledger: %w", err)
		}
		srv.ledger = ledger
		worker, err := export.NewWorker(svc, blobs, ledger, export.Options{
			QueueSize: a.cfg.Exports.QueueSize,
			Links:     a.cfg.Links,
			Logger:    a.log,
			Metrics:   a.metrics,
		})
		if err != nil {
			_ = ledger.Close()
			return nil, err
		}
		if _, err := worker.Recover(ctx); err != nil {
			_ = ledger.Close()
			return nil, fmt.Errorf("recover exports: %w", err)
		}
		worker.Start()
		srv.worker = worker
		opts.Exports = worker
		a.log.Info("exports enabled",
			zap.String("blob_driver", string(blobs.Driver())),
			zap.String("ledger_driver", string(ledger.Driver())))
	}

	handler, err := web.NewHandler(svc, opts)
	if err != nil {
		_ = srv.close(ctx)
		return nil, err
	}
	srv.handler = handler
	return srv, nil
}

// serve runs the HTTP server on ln until ctx is cancelled, then drains
// in-flight requests and the export worker within the shutdown timeout.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	srv, err := a.buildServer(ctx)
	if err != nil {
		_ = ln.Close()
		return err
	}
	httpServer := &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return errors.Join(httpServer.Shutdown(shutdownCtx), srv.close(shutdownCtx))
	})
	return g.Wait()
}
