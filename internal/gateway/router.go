package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/gateway/middleware"
)

// Router wraps a chi mux with the middleware every route shares
type Router struct {
	mux *chi.Mux
}

// NewRouter creates a router with panic recovery, access logging, CORS and metrics installed
func NewRouter(logger zerolog.Logger, allowedOrigins []string) *Router {
	mux := chi.NewRouter()
	mux.Use(
		middleware.Recoverer(logger),
		middleware.RequestLogger(logger),
		middleware.CORS(allowedOrigins),
		middleware.PrometheusMiddleware,
	)
	return &Router{mux: mux}
}

// Mux returns the underlying chi router
func (r *Router) Mux() chi.Router {
	return r.mux
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
