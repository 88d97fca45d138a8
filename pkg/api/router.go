// Package api assembles the relay HTTP surface: the REST routes, the
// WebSocket endpoint, and the server lifecycle around them.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/quietwire/quietwire/internal/api/auth"
	"github.com/quietwire/quietwire/internal/api/handlers"
	apimw "github.com/quietwire/quietwire/internal/api/middleware"
	"github.com/quietwire/quietwire/internal/api/ws"
	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/blob"
	"github.com/quietwire/quietwire/pkg/metrics"
	"github.com/quietwire/quietwire/pkg/relay/registry"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

// Deps carries everything the router wires together. Blobs may be nil,
// in which case the file endpoints respond 503.
type Deps struct {
	Store    store.Store
	Tokens   *auth.TokenService
	Registry *registry.Registry
	Blobs    blob.Store

	// LowKeyThreshold is the one-time pre-key count below which verify
	// responses carry a replenish hint. Zero uses the default.
	LowKeyThreshold int64
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Public routes carry only per-IP rate limits. Authenticated routes run
// behind the bearer middleware, which re-checks the device row on every
// request so a remote logout takes effect immediately.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	authHandler := handlers.NewAuthHandler(deps.Store, deps.Tokens, deps.LowKeyThreshold)
	userHandler := handlers.NewUserHandler(deps.Store)
	keyHandler := handlers.NewKeyHandler(deps.Store)
	messageHandler := handlers.NewMessageHandler(deps.Store, deps.Registry)
	healthHandler := handlers.NewHealthHandler(deps.Store)
	wsHandler := ws.NewHandler(deps.Tokens, deps.Store, deps.Registry)

	bearer := apimw.BearerAuth(deps.Tokens, deps.Store)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// WebSocket endpoint. No route timeout: the connection is long-lived
	// and authenticates itself during the handshake.
	r.Get("/ws", wsHandler.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))

		r.Route("/users", func(r chi.Router) {
			r.Use(apimw.RateLimiter(apimw.LimitAPI))
			r.Post("/register", userHandler.Register)
			r.Get("/by-username/{username}", userHandler.GetByUsername)
			r.Get("/{id}", userHandler.GetByID)
			r.Put("/{id}/identity", userHandler.RotateIdentity)
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(apimw.RateLimiter(apimw.LimitChallenge)).
				Post("/challenge", authHandler.Challenge)
			r.With(apimw.RateLimiter(apimw.LimitVerify)).
				Post("/verify", authHandler.Verify)
			r.With(apimw.RateLimiter(apimw.LimitLogout), bearer).
				Post("/logout", authHandler.Logout)
		})

		r.Route("/keys", func(r chi.Router) {
			r.Use(apimw.RateLimiter(apimw.LimitAPI))
			r.Use(bearer)
			r.Post("/signed-pre-key", keyHandler.UploadSignedPreKey)
			r.Post("/one-time-pre-keys", keyHandler.UploadOneTimePreKeys)
			r.Get("/bundle/{userId}", keyHandler.GetBundle)
			r.Get("/one-time-pre-keys/count/{userId}", keyHandler.CountOneTimePreKeys)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(apimw.RateLimiter(apimw.LimitAPI))
			r.Use(bearer)
			r.Post("/send", messageHandler.Send)
			r.Get("/offline", messageHandler.FetchOffline)
			r.Delete("/batch", messageHandler.BatchDelete)
		})

		r.Route("/files", func(r chi.Router) {
			r.Use(apimw.RateLimiter(apimw.LimitFiles))
			r.Use(bearer)
			if deps.Blobs != nil {
				fileHandler := handlers.NewFileHandler(deps.Blobs)
				r.Post("/", fileHandler.Upload)
				r.Get("/{ref}", fileHandler.Download)
				r.Delete("/{ref}", fileHandler.Delete)
			} else {
				r.HandleFunc("/*", blobDisabled)
			}
		})
	})

	return r
}

func blobDisabled(w http.ResponseWriter, _ *http.Request) {
	handlers.WriteError(w, http.StatusServiceUnavailable, "File storage is not configured")
}

// requestLogger logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimw.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
