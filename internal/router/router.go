package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"seafood-storefront/internal/config"
	"seafood-storefront/internal/handler"
	"seafood-storefront/internal/middleware"
	"seafood-storefront/internal/session"
)

func New(
	cfg *config.Config,
	sessions *session.Manager,
	sessionHandler *handler.SessionHandler,
	cartHandler *handler.CartHandler,
	wsHandler *handler.WSHandler,
	health func(ctx context.Context) error,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.SessionRateLimitRPM)
	requireSession := middleware.RequireSession(sessions)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req.Context()); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", wsHandler.Serve)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/session", func(s chi.Router) {
			s.Get("/", sessionHandler.Get)
			s.Post("/login", sessionHandler.Login)
			s.Post("/register", sessionHandler.Register)
			s.Post("/logout", sessionHandler.Logout)
			s.Post("/forgot-password", sessionHandler.ForgotPassword)
			s.Post("/reset-password", sessionHandler.ResetPassword)
			s.With(requireSession).Post("/logout-all", sessionHandler.LogoutAll)
			s.With(requireSession).Post("/change-password", sessionHandler.ChangePassword)
		})

		api.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/refresh", cartHandler.Refresh)
			c.Post("/items", cartHandler.AddItem)
			c.Put("/items/{itemID}", cartHandler.UpdateItem)
			c.Delete("/items/{itemID}", cartHandler.RemoveItem)
		})
	})

	return r
}
