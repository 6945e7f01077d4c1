package http

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

func NewRouter(deviceHandler DeviceHandler, syncHandler SyncHandler) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "device-sync"),
		slog.String("version", "v1.0.0"),
		slog.String("env", "development"),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", deviceHandler.List)
			r.Post("/", deviceHandler.Register)
			r.Get("/dashboard", deviceHandler.Dashboard)
			r.Post("/sync-all", syncHandler.SyncAll)

			r.Route("/{deviceID}", func(r chi.Router) {
				r.Get("/", deviceHandler.Get)
				r.Put("/", deviceHandler.Update)
				r.Delete("/", deviceHandler.Delete)

				r.Get("/health", deviceHandler.Health)
				r.Get("/sync-log", deviceHandler.SyncHistory)
				r.Get("/attendance", deviceHandler.RecentAttendance)
				r.Post("/sync", syncHandler.SyncDevice)

				r.Get("/info", deviceHandler.Info)
				r.Post("/restart", deviceHandler.Restart)
				r.Post("/clear-log", deviceHandler.ClearLog)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", deviceHandler.PullUsers)
					r.Post("/push", deviceHandler.PushUsers)
				})
			})
		})
	})
	return r
}
