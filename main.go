package main

// GET  /products/list      - list catalog products
// GET  /products/{id}      - product detail
// GET  /cart/list          - current session cart with totals
// POST /cart/add           - add a product variant to the cart
// POST /cart/add-product   - add a catalog product, priced by the commerce API
// POST /cart/remove        - remove a product (all variants) from the cart
// POST /cart/update        - set the quantity of a product
// POST /cart/clear         - empty the cart
// POST /checkout/order     - place an order for the cart
// POST /auth/{register,login,logout}, GET /auth/me
// GET  /orders, GET /orders/{id}, POST /orders/{id}/cancel
// GET|POST /orders/{id}/feedback
// DELETE /session         - drop the in-memory session (stored cart is kept)

import (
	"context"
	_ "embed"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/commerce"
	"storefront/config"
	"storefront/handler"
	"storefront/service"
	"storefront/session"
	"storefront/store"
)

//go:embed migrations.sql
var migrationSQL string

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := cfg.NewLogger()

	// --- Store ---
	st, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("store unavailable")
	}
	defer st.Close()

	// --- Service ---
	api := commerce.NewClient(cfg.API.BaseURL, cfg.API.Timeout.Duration(), log.WithField("component", "commerce"))
	sessions := session.NewRegistry(st, log.WithField("component", "session"),
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithIdleTimeout(cfg.Session.IdleTimeout.Duration()),
	)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.Run(sweepCtx, cfg.Session.SweepInterval.Duration())
	svc := service.NewService(sessions, api, log.WithField("component", "service"))
	var serviceInterface service.ServiceInterface = svc

	// --- Handlers ---
	h := handler.NewHandler(serviceInterface, log.WithField("component", "http"))

	// --- Server ---
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
	log.Info("server stopped")
}

func openStore(cfg *config.Config, log logrus.FieldLogger) (store.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := store.NewPostgresStore(cfg.Storage.URL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(migrationSQL); err != nil {
			pg.Close()
			return nil, err
		}
		log.Info("database migrations executed successfully")
		return pg, nil
	case "redis":
		rs := store.NewRedisStore(store.RedisOptions{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			Prefix:   cfg.Storage.KeyPrefix,
			TTL:      cfg.Storage.TTL.Duration(),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, err
		}
		return rs, nil
	default:
		log.Warn("using in-memory store, carts do not survive a restart")
		return store.NewMemoryStore(), nil
	}
}
