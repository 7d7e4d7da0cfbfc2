package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"retreat/internal/config"
	"retreat/internal/domain"
	"retreat/internal/export"
	"retreat/internal/models"
	"retreat/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type deadLetterSource interface {
	DeadLetters(ctx context.Context, limit int64) ([]models.SyncTask, error)
}

// Deps are the collaborators of the HTTP API. Idempotency, DeadLetters and
// ReadyChecks are optional.
type Deps struct {
	Resources      *service.ResourceService
	Reservations   *service.ReservationService
	Forms          *service.FormService
	Donations      *service.DonationService
	Members        *service.MemberService
	Exporter       *export.Exporter
	Idempotency    domain.IdempotencyStore
	IdempotencyTTL time.Duration
	DeadLetters    deadLetterSource
	ReadyChecks    map[string]func(context.Context) error
}

// HTTPServer serves the site forms, the scheduling tools and the admin API.
type HTTPServer struct {
	cfg     *config.APIConfig
	deps    Deps
	keys    *keyring
	limiter *RateLimiter
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Deps, limiter *RateLimiter, logger *zerolog.Logger) *HTTPServer {
	if limiter == nil {
		limiter = NewRateLimiter(cfg.RateLimit)
	}
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		keys:    newKeyring(cfg.Auth),
		limiter: limiter,
		log:     zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader,
			s.keys.apiKeyName, s.keys.extraName,
		},
		ExposedHeaders: []string{requestIDHeader, replayedHeader},
		MaxAge:         s.cfg.CORS.MaxAge,
	}))
	r.Use(s.rateLimit)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// публичные формы сайта
	r.Route("/api", func(r chi.Router) {
		r.With(s.formLimit, s.idempotent).Post("/forms/damages-to-camp-assets", s.handleDamageReport)
		r.With(s.formLimit, s.idempotent).Post("/forms/land-allocation", s.handleLandAllocation)
		r.Get("/forms", s.requirePermissionFunc(permReadAdmin, s.handleListSubmissions))
		r.Get("/forms/{reference}", s.requirePermissionFunc(permReadAdmin, s.handleGetSubmission))
		r.With(s.formLimit, s.idempotent).Post("/donations", s.handleCreateDonation)
		r.With(s.idempotent).Post("/donations/confirm", s.handleConfirmDonation)
		r.With(s.formLimit).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.memberAuth)
			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
		})

		r.Route("/v1", s.v1Routes)
	})

	return r
}

func (s *HTTPServer) v1Routes(r chi.Router) {
	r.Get("/resources", s.handleListResources)
	r.Get("/resources/{id}", s.handleGetResource)
	r.Get("/resources/{id}/schedule", s.handleSchedule)
	r.Get("/availability", s.handleAvailability)

	r.Get("/reservations", s.handleListReservations)
	r.Get("/reservations/{id}", s.handleGetReservation)
	r.With(s.idempotent).Post("/reservations", s.handleCreateReservation)

	r.Group(func(r chi.Router) {
		r.Use(s.requirePermission(permWriteReservations))
		r.Patch("/reservations/{id}/status", s.handleChangeStatus)
		r.Delete("/reservations/{id}", s.handleDeleteReservation)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requirePermission(permWriteResources))
		r.Post("/resources", s.handleCreateResource)
		r.Put("/resources/{id}", s.handleUpdateResource)
		r.Put("/resources/{id}/order", s.handleReorderResource)
		r.Delete("/resources/{id}", s.handleDeactivateResource)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requirePermission(permReadAdmin))
		r.Get("/stats", s.handleStats)
		r.Get("/reservations/export", s.handleExport)
		r.Get("/sync/dead-letters", s.handleDeadLetters)
	})
}

func (s *HTTPServer) requirePermissionFunc(perm string, h http.HandlerFunc) http.HandlerFunc {
	return s.requirePermission(perm)(h).ServeHTTP
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) idempotencyTTL() time.Duration {
	if s.deps.IdempotencyTTL > 0 {
		return s.deps.IdempotencyTTL
	}
	return time.Duration(models.DefaultIdempotencyTTL) * time.Second
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.deps.ReadyChecks))
	for name := range s.deps.ReadyChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := s.deps.ReadyChecks[name](ctx); err != nil {
			s.log.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			checks[name] = "fail"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	code, state := http.StatusOK, "ready"
	if !ready {
		code, state = http.StatusServiceUnavailable, "not ready"
	}
	writeJSON(w, code, map[string]any{"status": state, "checks": checks})
}
