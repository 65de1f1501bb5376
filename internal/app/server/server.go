// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/handler"
	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/metrics"
	"github.com/atinyakov/shortlinks/internal/middleware"
)

// Init wires every HTTP route. /metrics is reachable only from trustedSubnet.
func Init(svc service.URLServiceIface, auth service.AuthIface, logger *zap.Logger, trustedSubnet string) *chi.Mux {
	get := handler.NewGet(svc, logger)
	post := handler.NewPost(svc, logger)
	put := handler.NewPut(svc, logger)
	del := handler.NewDelete(svc, logger)
	admin := handler.NewAdmin(svc, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.WithGzip)

	r.Get("/ping", get.PingDB)
	r.With(middleware.WithSubnet(trustedSubnet)).Handle("/metrics", metrics.Handler())
	r.Get("/{code}", get.Redirect)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.WithJWT(auth))

		r.Post("/urls", post.Create)
		r.Post("/shorten", post.PlainBody)
		r.Get("/urls", get.List)
		r.Get("/urls/logs", get.Logs)
		r.Put("/urls/{code}", put.Update)
		r.Delete("/urls/{code}", del.Delete)
		r.Get("/urls/{code}/stats", get.Stats)
		r.Get("/dashboard", get.Dashboard)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/urls", admin.Overview)
			r.Delete("/owners/{owner}", admin.DeleteOwner)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Short URL is required", http.StatusBadRequest)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Route not found", http.StatusNotFound)
	})

	return r
}
