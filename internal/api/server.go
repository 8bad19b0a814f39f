// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/oggyb/soulmate-hub/internal/auth"
	"github.com/oggyb/soulmate-hub/internal/config"
	"github.com/oggyb/soulmate-hub/internal/service/admin"
	"github.com/oggyb/soulmate-hub/internal/service/chat"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
	"github.com/oggyb/soulmate-hub/internal/service/profile"
	"github.com/oggyb/soulmate-hub/internal/service/swipe"
)

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Tokens   *auth.JWTManager
	Accounts *auth.Accounts
	Profiles *profile.Service
	Swipes   *swipe.Service
	Chat     *chat.Service
	Notify   *notify.Service
	Admin    *admin.Service

	// Socket serves GET /ws. Nil leaves the route unmounted.
	Socket http.Handler
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config

	tokens   *auth.JWTManager
	accounts *auth.Accounts
	profiles *profile.Service
	swipes   *swipe.Service
	chat     *chat.Service
	notify   *notify.Service
	admin    *admin.Service
	socket   http.Handler
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		cfg:      cfg,
		tokens:   deps.Tokens,
		accounts: deps.Accounts,
		profiles: deps.Profiles,
		swipes:   deps.Swipes,
		chat:     deps.Chat,
		notify:   deps.Notify,
		admin:    deps.Admin,
		socket:   deps.Socket,
	}

	s.setupRouter()
	return s
}

// setupRouter configures the middleware chain and routes. CORS wraps the
// router from outside so preflight requests never hit route matching.
func (s *Server) setupRouter() {
	s.setupRoutes()

	var h http.Handler = s.router
	h = CORSMiddleware(s.cfg.HTTP.AllowedOrigins)(h)
	h = RecoveryMiddleware(h)
	h = LoggingMiddleware(h)
	h = RequestIDMiddleware(s.logger)(h)
	s.handler = h

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.HTTP.Host, s.cfg.HTTP.Port),
		Handler:      s.handler,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	limits := s.cfg.RateLimit
	rateLimiter := NewRateLimiter(limits.RegisteredRPS, limits.PremiumRPS, limits.StaffRPS, limits.Burst)

	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Socket authenticates on its own, from the header or ?token=
	if s.socket != nil {
		s.router.Handle("/ws", s.socket).Methods("GET")
	}

	// Credentials endpoints, limited by client IP
	authAPI := s.router.PathPrefix("/api/auth").Subrouter()
	authAPI.Use(RateLimitMiddleware(rateLimiter))
	authAPI.HandleFunc("/register", s.handleRegister).Methods("POST")
	authAPI.HandleFunc("/login", s.handleLogin).Methods("POST")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.Use(RateLimitMiddleware(rateLimiter))

	// Profiles
	api.HandleFunc("/profiles", s.handleCreateProfile).Methods("POST")
	api.HandleFunc("/profiles/me", s.handleGetOwnProfile).Methods("GET")
	api.HandleFunc("/profiles/{id}", s.handleGetProfile).Methods("GET")
	api.HandleFunc("/profiles/{id}", s.handleUpdateProfile).Methods("PUT")
	api.HandleFunc("/profiles/{id}/view", s.handleViewProfile).Methods("POST")
	api.HandleFunc("/discovery/profiles", s.handleDiscover).Methods("GET")
	api.HandleFunc("/guests", s.handleGuests).Methods("GET")

	// Swipes and matches
	api.HandleFunc("/swipes", s.handleSwipe).Methods("POST")
	api.HandleFunc("/super-likes", s.handleSuperLike).Methods("POST")
	api.HandleFunc("/swipes/{targetId}", s.handleRewind).Methods("DELETE")
	api.HandleFunc("/matches", s.handleListMatches).Methods("GET")
	api.HandleFunc("/likes", s.handleListLikers).Methods("GET")
	api.HandleFunc("/likes/count", s.handleLikesCount).Methods("GET")

	// Chat and calls
	api.HandleFunc("/conversations", s.handleListConversations).Methods("GET")
	api.HandleFunc("/conversations", s.handleCreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", s.handleSendMessage).Methods("POST")
	api.HandleFunc("/calls/signal", s.handleCallSignal).Methods("POST")

	// Notifications
	api.HandleFunc("/notifications", s.handleListNotifications).Methods("GET")
	api.HandleFunc("/notifications/unread-count", s.handleUnreadCount).Methods("GET")
	api.HandleFunc("/notifications/mark-all-read", s.handleMarkAllRead).Methods("POST")
	api.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods("POST")

	// Admin
	adm := api.PathPrefix("/admin").Subrouter()
	adm.HandleFunc("/users", s.handleListUsers).Methods("GET")
	adm.HandleFunc("/users/{id}/role", s.handleSetRole).Methods("PUT")
	adm.HandleFunc("/users/{id}/ban", s.handleSetBan).Methods("PUT")
	adm.HandleFunc("/users/{id}", s.handleDeleteUser).Methods("DELETE")
	adm.HandleFunc("/users/{id}/subscription", s.handleGrantSubscription).Methods("PUT")
	adm.HandleFunc("/users/{id}/permissions", s.handleGetPermissions).Methods("GET")
	adm.HandleFunc("/users/{id}/permissions", s.handleSetPermissions).Methods("POST")
	adm.HandleFunc("/moderation/{id}/approve", s.handleApprovePhoto).Methods("POST")
	adm.HandleFunc("/moderation/{id}/reject", s.handleRejectPhoto).Methods("POST")
	adm.HandleFunc("/security-dashboard", s.handleSecurityDashboard).Methods("GET")
	adm.HandleFunc("/security-events", s.handleSecurityEvents).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.cfg.App.Name,
	})
}

// Handler returns the fully wrapped handler. Tests drive it directly.
func (s *Server) Handler() http.Handler { return s.handler }

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
