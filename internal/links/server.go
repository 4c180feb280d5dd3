// Package links serves the web-style deep-link prefix: the app-link verification
// files the mobile platforms fetch, and a /reset-password landing route that hands
// the link over to the app.
package links

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"pawsit/agent/internal/deeplink"
	"pawsit/agent/internal/devlinks"
)

// Config describes what the links server publishes.
type Config struct {
	// Addr is the listen address, e.g. ":8081".
	Addr string
	// AppPrefix is the in-app deep-link prefix /reset-password forwards to (e.g. "pawsit://").
	AppPrefix string
	// AppleAppID is "<team id>.<bundle id>". Empty disables the association file.
	AppleAppID string
	// AndroidPackage and AndroidCertSHA256 describe the Android app. Empty package disables assetlinks.json.
	AndroidPackage    string
	AndroidCertSHA256 []string
	// DevLinks exposes GET /dev/reset-link when non-nil. Never set in production.
	DevLinks devlinks.Store
}

// Pusher accepts URLs for the running agent's deep-link interpreter (deeplink.Feed).
type Pusher interface {
	Push(raw string)
}

// Server is the deep-link HTTP server.
type Server struct {
	cfg        Config
	feed       Pusher
	log        *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer builds the router. feed may be nil when the agent is not local to the browser.
func NewServer(cfg Config, feed Pusher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cfg: cfg, feed: feed, log: log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/.well-known", func(wk chi.Router) {
		wk.Get("/apple-app-site-association", s.appleAssociation)
		wk.Get("/assetlinks.json", s.assetLinks)
	})
	r.Get("/"+deeplink.ScreenResetPassword, s.resetPassword)
	if cfg.DevLinks != nil {
		r.Get("/dev/reset-link", s.devResetLink)
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("links server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) appleAssociation(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AppleAppID == "" {
		http.NotFound(w, r)
		return
	}
	type detail struct {
		AppIDs     []string         `json:"appIDs"`
		Components []map[string]any `json:"components"`
	}
	body := map[string]any{
		"applinks": map[string]any{
			"details": []detail{{
				AppIDs:     []string{s.cfg.AppleAppID},
				Components: []map[string]any{{"/": "/" + deeplink.ScreenResetPassword + "*"}},
			}},
		},
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) assetLinks(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AndroidPackage == "" {
		http.NotFound(w, r)
		return
	}
	fingerprints := s.cfg.AndroidCertSHA256
	if fingerprints == nil {
		fingerprints = []string{}
	}
	body := []map[string]any{{
		"relation": []string{"delegate_permission/common.handle_all_urls"},
		"target": map[string]any{
			"namespace":                "android_app",
			"package_name":             s.cfg.AndroidPackage,
			"sha256_cert_fingerprints": fingerprints,
		},
	}}
	writeJSON(w, http.StatusOK, body)
}

// resetPassword is where the emailed link lands when the app did not intercept it.
// It forwards to the in-app scheme and, when the agent runs next to the browser,
// hands the link straight to the interpreter.
func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get(deeplink.ParamOOBCode))
	if code == "" {
		http.Error(w, "missing "+deeplink.ParamOOBCode, http.StatusBadRequest)
		return
	}
	target := deeplink.ResetPasswordURL(s.cfg.AppPrefix, code)
	if s.feed != nil {
		s.feed.Push(target)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) devResetLink(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}
	link, ok := s.cfg.DevLinks.Get(r.Context(), email)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": link})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request; query strings are dropped since they carry reset codes.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
