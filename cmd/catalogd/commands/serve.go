package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-catalog-backend/internal/config"
	"github.com/tbourn/go-catalog-backend/internal/events"
	httpapi "github.com/tbourn/go-catalog-backend/internal/http"
	"github.com/tbourn/go-catalog-backend/internal/observability"
	"github.com/tbourn/go-catalog-backend/internal/repo"
	"github.com/tbourn/go-catalog-backend/internal/services"
	"github.com/tbourn/go-catalog-backend/internal/sysutil"
)

const (
	shutdownGrace = 15 * time.Second
	purgeInterval = 10 * time.Minute
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve runs the API until SIGINT/SIGTERM, then drains in-flight requests.
func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg
	instanceID := sysutil.FirstNonEmpty(os.Getenv("HOSTNAME"), uuid.NewString())

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, Version, instanceID, db)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	store, storeCloser := openCache(ctx, cfg.Cache)
	defer storeCloser.Close()

	pub, bus, err := openEvents(cfg.AMQP)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if bus != nil {
		defer bus.Close()
	}

	catalog := services.NewCatalogService(db, store, pub)
	catalog.ListTTL = cfg.Cache.ListTTL
	catalog.DetailTTL = cfg.Cache.DetailTTL
	auth := a.authService(db)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Services{Catalog: catalog, Auth: auth}, cfg)

	srv := newHTTPServer(ctx, cfg, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Str("cache", cfg.Cache.Backend).
			Bool("amqp", bus != nil).
			Str("version", Version).
			Msg("catalog API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return purgeLoop(gctx, db, auth, purgeInterval)
	})
	if bus != nil {
		g.Go(func() error {
			return consumeInvalidations(gctx, bus, catalog.ApplyInvalidation)
		})
	}
	return g.Wait()
}

// newHTTPServer builds the API server. Request contexts carry ctx's values
// but not its cancellation, so a shutdown signal lets Shutdown drain
// in-flight requests instead of failing their queries.
func newHTTPServer(ctx context.Context, cfg config.Config, h http.Handler) *http.Server {
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

type invalidationSource interface {
	Consume(ctx context.Context, handle func(context.Context, events.Invalidation) error) error
}

// consumeInvalidations applies peer invalidations until ctx is done. A broker
// that drops the subscription leaves this instance on TTL expiry alone, which
// is logged but keeps the API serving.
func consumeInvalidations(ctx context.Context, src invalidationSource, apply func(context.Context, events.Invalidation) error) error {
	err := src.Consume(ctx, apply)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, events.ErrDeliveriesClosed):
		log.Warn().Err(err).Msg("invalidation consumer stopped, peer changes now expire by TTL only")
		return nil
	default:
		return fmt.Errorf("invalidation consumer: %w", err)
	}
}
