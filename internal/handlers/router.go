package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hibikilabs/hibiki/internal/config"
	"github.com/hibikilabs/hibiki/internal/session"
	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"github.com/hibikilabs/hibiki/pkg/metadata"
	"github.com/hibikilabs/hibiki/pkg/radio"
	"github.com/hibikilabs/hibiki/pkg/thumbnail"
)

// Server bundles the handler dependencies
type Server struct {
	engine   radio.BroadcastEngine
	resolver metadata.Resolver
	thumbs   *thumbnail.Proxy
	sessions *session.Manager
	policy   *session.Policy
	history  repository.HistoryRepository
	config   *config.Config
	logger   logging.Logger
}

// Options carries the dependencies for NewServer
type Options struct {
	Engine   radio.BroadcastEngine
	Resolver metadata.Resolver
	Thumbs   *thumbnail.Proxy
	Sessions *session.Manager
	Policy   *session.Policy
	History  repository.HistoryRepository
	Config   *config.Config
	Logger   logging.Logger
}

// NewServer creates the HTTP handler set
func NewServer(opts Options) *Server {
	return &Server{
		engine:   opts.Engine,
		resolver: opts.Resolver,
		thumbs:   opts.Thumbs,
		sessions: opts.Sessions,
		policy:   opts.Policy,
		history:  opts.History,
		config:   opts.Config,
		logger:   opts.Logger,
	}
}

// Router builds the chi router with the canonical middleware stack
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Recoverer first so nothing below can crash the process
	r.Use(Recoverer(s.logger))
	r.Use(RequestID)
	r.Use(CORS([]string{s.config.ClientOrigin}))
	r.Use(Metrics())
	r.Use(RequestLogger(s.logger))
	r.Use(s.sessions.Middleware())

	// Public surface
	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/me", s.handleMe)
	r.Get("/stream", s.handleStream)
	r.Get("/youtube/thumbnail.png", s.handleThumbnail(common.SourceYouTube))
	r.Get("/soundcloud/thumbnail.png", s.handleThumbnail(common.SourceSoundCloud))
	r.Handle("/metrics", promhttp.Handler())

	// Queue mutations need an authenticated, allowed user
	r.Group(func(r chi.Router) {
		r.Use(RateLimit(s.config.RateLimitRequests, s.config.RateLimitWindow))
		r.Use(s.requireQueueAccess)

		r.Post("/api/queue", s.handleEnqueue)
		r.Delete("/api/queue/{id}", s.handleRemoveTrack)
		r.Patch("/api/queue/{id}", s.handleMoveTrack)
		r.Post("/api/pause", s.handlePause)
		r.Post("/api/skip", s.handleSkip)
	})

	// Journal access is admin only
	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Get("/api/history", s.handleHistory)
	})

	return r
}

// requireQueueAccess rejects anonymous callers with 401 and authenticated
// callers outside the allow list with 403
func (s *Server) requireQueueAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := session.IdentityFromContext(r.Context())
		if identity == nil {
			writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !s.policy.CanQueue(identity.ID) {
			writeErrorMessage(w, http.StatusForbidden, "not allowed to control the queue")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin admits only configured admins
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := session.IdentityFromContext(r.Context())
		if identity == nil {
			writeErrorMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !s.policy.IsAdmin(identity.ID) {
			writeErrorMessage(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
