/*
Package handler provides the HTTP handlers and routing setup for chatgate.

This file defines the main Router, applying logging, CORS, metrics and IP-based rate limiting
before delegating requests to the API handlers and the WebSocket handshake.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/limiter"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/resp"
)

const (
	AuthRate       = 0.2
	AuthBurst      = 5
	CreateRate     = 0.05
	CreateBurst    = 2
	HandshakeRate  = 0.5
	HandshakeBurst = 10

	healthTimeout = 2 * time.Second
)

// Limit is one per-IP token bucket.
type Limit struct {
	Rate  rate.Limit
	Burst int
}

// RateLimits are the per-IP buckets of the router.
type RateLimits struct {
	Auth      Limit
	Create    Limit
	Handshake Limit
}

// DefaultRateLimits returns the production buckets.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Auth:      Limit{Rate: rate.Limit(AuthRate), Burst: AuthBurst},
		Create:    Limit{Rate: rate.Limit(CreateRate), Burst: CreateBurst},
		Handshake: Limit{Rate: rate.Limit(HandshakeRate), Burst: HandshakeBurst},
	}
}

// Router sets up the main HTTP routing table for the application. ctx bounds the background
// sweepers of the rate limiters.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	limits := DefaultRateLimits()
	if deps.Limits != nil {
		limits = *deps.Limits
	}
	authLimiter := limiter.NewIPRateLimiter(ctx, limits.Auth.Rate, limits.Auth.Burst)
	createLimiter := limiter.NewIPRateLimiter(ctx, limits.Create.Rate, limits.Create.Burst)
	handshakeLimiter := limiter.NewIPRateLimiter(ctx, limits.Handshake.Rate, limits.Handshake.Burst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{session.RefreshedHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(deps.Metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", HandleHealth(deps))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.With(authLimiter.Middleware).Post("/register", HandleRegister(deps))
			auth.With(authLimiter.Middleware).Post("/login", HandleLogin(deps))
			auth.Post("/logout", HandleLogout(deps))
			auth.Post("/refresh", HandleRefresh(deps))
			auth.With(deps.Sessions.OptionalAuth).Get("/verify", HandleVerify(deps))
		})

		api.Group(func(private chi.Router) {
			private.Use(deps.Sessions.RequireAuth)

			private.Get("/users/me", HandleGetMe(deps))
			private.Get("/users/search", HandleSearchUsers(deps))
			private.With(session.RequireRole(user.RoleAdmin)).Get("/admin/users", HandleListUsers(deps))

			private.Route("/rooms", func(rooms chi.Router) {
				rooms.Get("/", HandleListRooms(deps))
				rooms.With(createLimiter.Middleware).Post("/", HandleCreateRoom(deps))
				rooms.Post("/{roomId}/join", HandleJoinRoom(deps))
				rooms.Get("/{roomId}/info", HandleRoomInfo(deps))
				rooms.Get("/{roomId}/messages", HandleListMessages(deps))
			})

			if deps.Storage != nil {
				private.Post("/files/presign", HandlePresignUploadURL(deps))
				private.Get("/files/download", HandlePresignDownloadURL(deps))
			}
		})
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, handshakeLimiter))

	return r
}

// HandleHealth reports liveness together with the reachability of the backing stores.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()

			if err := deps.Health(ctx); err != nil {
				logx.Error(err, "Health check failed")
				resp.RespondError(w, r, errs.NewError(errs.ErrServiceUnavailable))
				return
			}
		}

		data := map[string]string{
			"status":  "ok",
			"service": "chatgate",
		}
		resp.RespondSuccess(w, r, data)
	}
}
