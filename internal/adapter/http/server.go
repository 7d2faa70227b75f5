package http

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bnema/mediadesk/internal/adapter/http/middleware"
	"github.com/bnema/mediadesk/internal/adapter/http/ratelimit"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/port"
	"github.com/bnema/mediadesk/static"
)

// Deps are the services the front-end renders and submits through.
type Deps struct {
	Auth        AuthService
	Submissions SubmissionService
	Metadata    MetadataService
	Preferences PreferenceService
	Backend     port.JobBackend
	History     port.SubmissionStore
	Jobs        JobTracker
	Events      EventSource
}

type Options struct {
	AuthSecret      string
	MaxUploadSizeMB int
	BehindProxy     bool
	Voices          []domain.Voice
	KeepAlive       time.Duration
}

type Server struct {
	mux         *http.ServeMux
	handler     http.Handler
	deps        Deps
	handlers    *Handlers
	sse         *SSEHandler
	limiter     *ratelimit.LoginRateLimiter
	failures    *ratelimit.FailureTracker
	backoff     *ratelimit.Backoff
	behindProxy bool
}

func NewServer(deps Deps, opts Options) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		deps:        deps,
		handlers:    NewHandlers(deps, opts),
		sse:         NewSSEHandler(deps.Events, deps.Jobs, opts.KeepAlive),
		limiter:     ratelimit.NewLoginRateLimiter(5, 15*time.Minute, 30*time.Minute),
		failures:    ratelimit.NewFailureTracker(),
		backoff:     ratelimit.NewBackoff(500*time.Millisecond, 10*time.Second, 2.0),
		behindProxy: opts.BehindProxy,
	}

	s.registerRoutes()
	s.registerStatic()

	csrf := middleware.NewCSRF(opts.AuthSecret, opts.BehindProxy)
	s.handler = middleware.AccessLog(middleware.SecurityHeaders(opts.BehindProxy)(csrf.Protect(s.mux)))
	return s
}

// Run prunes idle rate-limit entries until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.limiter.Run(ctx, time.Minute)
}

func (s *Server) registerRoutes() {
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return AuthMiddleware(s.deps.Auth, h)
	}
	h := s.handlers

	setup := SetupHandler(s.deps.Auth, s.behindProxy)
	s.mux.HandleFunc("GET /setup", setup)
	s.mux.HandleFunc("POST /setup", setup)

	login := LoginHandler(s.deps.Auth, s.limiter, s.failures, s.backoff, s.behindProxy)
	s.mux.HandleFunc("GET /login", login)
	s.mux.HandleFunc("POST /login", login)
	s.mux.HandleFunc("POST /logout", LogoutHandler(s.behindProxy))

	account := auth(AccountHandler(s.deps.Auth))
	s.mux.HandleFunc("GET /account", account)
	s.mux.HandleFunc("POST /account", account)

	s.mux.HandleFunc("GET /{$}", auth(h.Dashboard()))

	s.mux.HandleFunc("GET /subtitles", auth(h.SubtitleForm()))
	s.mux.HandleFunc("POST /subtitles", auth(h.SubmitSubtitle()))
	s.mux.HandleFunc("GET /dub", auth(h.DubForm()))
	s.mux.HandleFunc("POST /dub", auth(h.SubmitDub()))
	s.mux.HandleFunc("GET /youtube", auth(h.YoutubeForm()))
	s.mux.HandleFunc("POST /youtube", auth(h.SubmitYoutube()))

	s.mux.HandleFunc("GET /jobs/{id}", auth(h.JobPage()))
	s.mux.HandleFunc("POST /jobs/{id}/cancel", auth(h.CancelJob()))
	s.mux.HandleFunc("GET /events/{id}", auth(s.sse.Events()))

	s.mux.HandleFunc("GET /files", auth(h.Files()))
	s.mux.HandleFunc("DELETE /files", auth(h.DeleteFile()))

	s.mux.HandleFunc("GET /metadata/search", auth(h.SearchMetadata()))
	s.mux.HandleFunc("POST /metadata/{id}", auth(h.UpdateMetadata()))
	s.mux.HandleFunc("POST /voices/preview", auth(h.PreviewVoice()))
	s.mux.HandleFunc("POST /preferences", auth(h.SavePreferences()))

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
}

func (s *Server) registerStatic() {
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static.FS))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
