// Package server exposes the rectification engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/rectify-cli/internal/monitoring"
	"github.com/sells-group/rectify-cli/internal/rectify"
	"github.com/sells-group/rectify-cli/internal/store"
)

// DefaultRequestTimeout bounds a single request when Options leaves it unset.
const DefaultRequestTimeout = 60 * time.Second

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// SaveRuns persists every /v1/rectify call unless the request opts out.
	SaveRuns bool
	// DefaultProfile applies when a request names none.
	DefaultProfile rectify.Profile
	// HighPrecision is set when the engine runs on an external ephemeris.
	HighPrecision bool
	// MetricsLookbackHours is the /v1/metrics window when the request
	// names none. Zero means 24.
	MetricsLookbackHours int
	// Alerter, when set, evaluates /v1/metrics snapshots. Alerts are
	// reported, not delivered.
	Alerter *monitoring.Alerter
}

// Server routes API requests to the engine and the run store.
type Server struct {
	engine  *rectify.Engine
	store   store.Store
	metrics *monitoring.Collector
	opts    Options
	router  *chi.Mux
	log     *zap.Logger
}

// New builds a Server. st may be nil, in which case run history endpoints
// answer 503 and nothing is persisted.
func New(engine *rectify.Engine, st store.Store, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.DefaultProfile == "" {
		opts.DefaultProfile = rectify.ProfileBalanced
	}
	if opts.MetricsLookbackHours <= 0 {
		opts.MetricsLookbackHours = 24
	}
	s := &Server{
		engine: engine,
		store:  st,
		opts:   opts,
		router: chi.NewRouter(),
		log:    zap.L().With(zap.String("component", "server")),
	}
	if st != nil {
		s.metrics = monitoring.NewCollector(st)
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/presets", s.handlePresets)
		r.Post("/validate", s.handleValidate)
		r.Post("/rectify", s.handleRectify)
		r.Post("/optimize", s.handleOptimize)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/metrics", s.handleMetrics)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode JSON response", zap.Error(err))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
