package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/gateway/middleware"
	notification_http "github.com/saransh1220/blueprint-notify/internal/modules/notification/interfaces/http"
	"github.com/saransh1220/blueprint-notify/internal/shared/utils"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds all the handlers and middleware needed for routing
type RouterConfig struct {
	Logger              zerolog.Logger
	AllowedOrigins      []string
	AuthMiddleware      *middleware.AuthMiddleWare
	NotificationHandler *notification_http.NotificationHandler
	HealthChecks        map[string]HealthCheck
}

// SetupRoutes creates and configures all application routes
func SetupRoutes(config RouterConfig) http.Handler {
	router := NewRouter(config.Logger, config.AllowedOrigins)
	r := router.Mux()

	r.Get("/health", healthHandler(config.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	nh := config.NotificationHandler
	r.Group(func(r chi.Router) {
		r.Use(config.AuthMiddleware.RequireAuth)

		r.Get("/ws", nh.Subscribe)

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", nh.Create)
			r.Get("/", nh.ListNotifications)
			r.Post("/system", nh.CreateSystem)
			r.With(middleware.RequireRole(middleware.RoleAdmin)).Post("/announcements", nh.Announce)
			r.Get("/stats", nh.Stats)
			r.Get("/unread-count", nh.UnreadCount)
			r.Patch("/read-all", nh.MarkAllAsRead)
			r.Patch("/{id}/read", nh.MarkAsRead)
			r.Delete("/{id}", nh.Delete)
		})
	})

	return router
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		utils.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
