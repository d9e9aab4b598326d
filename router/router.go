package router

import (
	"context"
	"net/http"
	"time"

	"docrelay/middleware"
	"docrelay/pkg/metrics"
	"docrelay/socket"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Hub *socket.Hub
	// Ready reports whether the store is reachable; nil means always ready.
	Ready     func(ctx context.Context) error
	CORSAllow []string
	JWTSecret string
}

func Setup(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.RequestLogger,
		chimw.Recoverer,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSAllow,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.With(middleware.AuthMiddleware(d.JWTSecret)).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(d.Hub, w, r, middleware.UserIDFrom(r.Context()))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
