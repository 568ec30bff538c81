package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	hubmiddleware "github.com/modelhub-io/modelhub/internal/middleware"
	"github.com/modelhub-io/modelhub/internal/services/project"
	"github.com/modelhub-io/modelhub/internal/services/query"
	"github.com/modelhub-io/modelhub/internal/services/session"
	"github.com/modelhub-io/modelhub/internal/telemetry"
)

// RouterOptions controls the construction of the HTTP router. Services
// must be set; the rest defaults sensibly when zero.
type RouterOptions struct {
	Sessions *session.Service
	Projects *project.Service
	Queries  *query.Service

	// CheckerSecret authenticates callbacks on /internal/checker/results.
	// The route is not mounted when empty.
	CheckerSecret []byte

	Metrics       *telemetry.ServerMetrics
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter assembles the chi router with shared middleware, the CORS
// policy and every API route mounted.
func NewRouter(opts RouterOptions) chi.Router {
	h := &handlers{
		sessions: opts.Sessions,
		projects: opts.Projects,
		queries:  opts.Queries,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	if opts.Metrics != nil {
		r.Use(requestMetrics(opts.Metrics))
	}

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	r.Post("/auth/login", h.handleLogin)

	// Everything below requires a live session.
	r.Group(func(r chi.Router) {
		r.Use(hubmiddleware.SessionAuth(opts.Sessions))

		r.Post("/auth/logout", h.handleLogout)
		r.Post("/auth/logout/all", h.handleLogoutAll)
		r.Get("/api/whoami", h.handleWhoAmI)

		r.Route("/api/projects", func(r chi.Router) {
			r.Post("/", h.handleProjectCreate)
			r.Get("/", h.handleProjectList)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", h.handleProjectGet)
				r.Put("/", h.handleProjectRename)
				r.Delete("/", h.handleProjectDelete)

				r.Post("/lock", h.handleLockAcquire)
				r.Post("/lock/renew", h.handleLockRenew)
				r.Delete("/lock", h.handleLockRelease)

				r.Put("/document", h.handleDocumentUpdate)

				r.Get("/access", h.handleAccessList)
				r.Post("/access", h.handleAccessGrant)
				r.Delete("/access/{userID}", h.handleAccessRevoke)

				r.Get("/queries", h.handleQueryList)
				r.Post("/queries", h.handleQueryCreate)
			})
		})

		r.Route("/api/queries/{queryID}", func(r chi.Router) {
			r.Get("/", h.handleQueryGet)
			r.Put("/", h.handleQueryUpdate)
			r.Delete("/", h.handleQueryDelete)
			r.Post("/run", h.handleQueryRun)
		})
	})

	if len(opts.CheckerSecret) > 0 {
		r.Group(func(r chi.Router) {
			r.Use(hubmiddleware.CheckerAuth(opts.CheckerSecret))
			r.Post("/internal/checker/results", h.handleCheckerResult)
		})
	}

	return r
}

// requestMetrics records count, duration and error totals per route.
func requestMetrics(m *telemetry.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			m.RecordRequest(r.Context(), r.Method, route,
				strconv.Itoa(ww.Status()), float64(time.Since(start).Milliseconds()))
		})
	}
}
