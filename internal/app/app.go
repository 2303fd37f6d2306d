package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seafood-storefront/internal/apiclient"
	"seafood-storefront/internal/cart"
	"seafood-storefront/internal/config"
	"seafood-storefront/internal/event"
	"seafood-storefront/internal/handler"
	"seafood-storefront/internal/router"
	"seafood-storefront/internal/session"
	"seafood-storefront/internal/token"
	"seafood-storefront/internal/websocket"
)

// App is one storefront agent: a single device session exposed over HTTP.
type App struct {
	server       *http.Server
	Session      *session.Manager
	Cart         *cart.Reconciler
	cancel       context.CancelFunc
	cleanupFuncs []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	opened, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	base := apiclient.New(cfg.APIBaseURL, cfg.APITimeout)
	tokens := token.NewManager(opened.store, base)
	api := base.WithTokens(tokens)

	bus := event.NewBus()
	sessions := session.New(api, tokens, opened.store, bus, cfg.LoginPath)
	reconciler := cart.NewReconciler(api, sessions, opened.store, bus)

	if user, ok := sessions.Restore(ctx); ok {
		slog.Info("resuming signed-in session", "user_id", user.ID)
	} else {
		slog.Info("starting anonymous session")
	}
	if err := reconciler.Load(ctx); err != nil {
		opened.close()
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub(bus)
	go hub.Run(runCtx)
	go reconciler.Run(runCtx)

	appRouter := router.New(
		cfg,
		sessions,
		handler.NewSessionHandler(sessions),
		handler.NewCartHandler(reconciler, api),
		handler.NewWSHandler(runCtx, hub, cfg.CORSOrigins),
		opened.health,
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		Session:      sessions,
		Cart:         reconciler,
		cancel:       cancel,
		cleanupFuncs: []func(){opened.close},
	}, nil
}

// Handler exposes the agent's routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	go func() {
		slog.Info("agent starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("agent failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	return a.Shutdown()
}

func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.cancel()
	err := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("agent stopped")
	return nil
}
