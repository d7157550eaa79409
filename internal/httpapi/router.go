// Package httpapi exposes the contact pipeline, blog and admin login over
// HTTP with JSON {success, message} envelopes.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mopstar/mopstar-api/internal/auth"
	"github.com/mopstar/mopstar-api/internal/blog"
	"github.com/mopstar/mopstar-api/internal/contact"
	"github.com/mopstar/mopstar-api/internal/media"
	"github.com/mopstar/mopstar-api/internal/metrics"
)

const (
	defaultMaxBodyBytes   = 64 << 10
	defaultMaxUploadBytes = 10 << 20
	defaultFallback       = "info@mopstarcleaning.com"
)

// Options tunes the router.
type Options struct {
	// AllowedOrigins is the CORS allowlist.
	AllowedOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
	// MaxUploadBytes caps multipart blog uploads.
	MaxUploadBytes int64
	// FallbackContact is shown in user-facing failure messages.
	FallbackContact string
}

// Deps are the services behind the routes. Nil Blog disables the blog
// routes, nil Auth disables admin login and blog writes, nil Uploader
// rejects image uploads.
type Deps struct {
	Contact  *contact.Service
	Blog     *blog.Service
	Auth     *auth.Authenticator
	Uploader media.Uploader
	Logger   *slog.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	deps Deps
	opts Options
}

// NewRouter builds the HTTP handler for the API.
func NewRouter(deps Deps, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.FallbackContact == "" {
		opts.FallbackContact = defaultFallback
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, opts: opts}

	r := chi.NewRouter()
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(requestLogger(deps.Logger))
	r.Use(secHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "token"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", handleRoot)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/contact", s.handleContact)
		r.Get("/contact/health", s.handleContactHealth)

		if deps.Auth != nil {
			r.Post("/admin/login", s.handleAdminLogin)
		}

		if deps.Blog != nil {
			r.Route("/blogs", func(r chi.Router) {
				r.Get("/", s.handleListPosts)
				r.Get("/{id}", s.handleGetPost)
				r.Post("/{id}/comments", s.handleAddComment)
				r.Get("/{id}/comments", s.handleListComments)
				r.Delete("/{blogID}/comments/{commentID}", s.handleDeleteComment)

				if deps.Auth != nil {
					r.Group(func(r chi.Router) {
						r.Use(s.requireAdmin)
						r.Post("/", s.handleCreatePost)
						r.Put("/{id}", s.handleUpdatePost)
						r.Delete("/{id}", s.handleDeletePost)
					})
				}
			})
		}
	})

	// Legacy paths used by older front ends.
	r.Post("/contact", s.handleContact)
	r.Get("/contact/health", s.handleContactHealth)

	return r
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("API Working"))
}
