// Package api exposes the HTTP and websocket surface of the service
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chartpilot/config"
	"chartpilot/internal/aikeys"
	"chartpilot/internal/analysis"
	"chartpilot/internal/auth"
	"chartpilot/internal/automation"
	"chartpilot/internal/billing"
	"chartpilot/internal/cache"
	"chartpilot/internal/calendar"
	"chartpilot/internal/database"
	"chartpilot/internal/events"
	"chartpilot/internal/journal"
	"chartpilot/internal/logging"
	"chartpilot/internal/snapshot"
)

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key under the limit
func (r *RateLimiter) Allow(key string, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	cfg         config.ServerConfig
	repo        *database.Repository
	eventBus    *events.EventBus
	authService *auth.Service
	aiKeys      *aikeys.Service
	snapshots   *snapshot.Service
	analyses    *analysis.Service
	calendar    *calendar.Service
	schedules   *automation.Service
	tracker     *automation.RunTracker
	journal     *journal.Service
	billing     *billing.StripeService
	cache       *cache.CacheService
	hub         *UserHub
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// Services bundles everything the server routes to
type Services struct {
	Repo        *database.Repository
	EventBus    *events.EventBus
	AuthService *auth.Service
	AIKeys      *aikeys.Service
	Snapshots   *snapshot.Service
	Analyses    *analysis.Service
	Calendar    *calendar.Service
	Schedules   *automation.Service
	Tracker     *automation.RunTracker
	Journal     *journal.Service
	Billing     *billing.StripeService // Can be nil when billing is disabled
	Cache       *cache.CacheService    // Can be nil when Redis is disabled
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, svcs Services) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		cfg:         cfg,
		repo:        svcs.Repo,
		eventBus:    svcs.EventBus,
		authService: svcs.AuthService,
		aiKeys:      svcs.AIKeys,
		snapshots:   svcs.Snapshots,
		analyses:    svcs.Analyses,
		calendar:    svcs.Calendar,
		schedules:   svcs.Schedules,
		tracker:     svcs.Tracker,
		journal:     svcs.Journal,
		billing:     svcs.Billing,
		cache:       svcs.Cache,
		hub:         NewUserHub(svcs.EventBus),
		rateLimiter: NewRateLimiter(time.Minute),
		logger:      logging.WithComponent("api"),
	}

	server.setupRoutes()
	go server.hub.Run()

	return server
}

// requestIDMiddleware tags every request with an ID for log correlation.
// An inbound X-Request-ID is honored so upstream proxies can trace calls.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// rateLimitMiddleware limits requests per user based on the tier's
// per-minute budget. Unauthenticated requests share a per-IP bucket.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := auth.GetUserID(c)
		limit := database.GetTierConfig(database.SubscriptionTier(auth.GetUserTier(c))).RateLimitPerMin
		if key == "" {
			key = "ip:" + c.ClientIP()
			limit = database.TierConfigs[database.TierFree].RateLimitPerMin
		}

		if !s.rateLimiter.Allow(key, limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	// Stripe calls this endpoint directly; it authenticates with the
	// webhook signature rather than a user token.
	s.router.POST("/api/billing/webhook", s.handleBillingWebhook)

	authHandlers := auth.NewHandlers(s.authService, s.eventBus)
	authGroup := s.router.Group("/api/auth")
	authHandlers.RegisterRoutes(authGroup, s.authService.GetJWTManager())

	// Websocket authenticates via query token inside the handler because
	// browsers cannot set an Authorization header on the upgrade request.
	s.router.GET("/ws", s.handleWebSocket)

	// Pricing is public so the billing page renders before login; the
	// response carries the caller's tier when a token is present.
	s.router.GET("/api/billing/config",
		auth.OptionalMiddleware(s.authService.GetJWTManager()), s.handleBillingConfig)

	api := s.router.Group("/api")
	api.Use(auth.Middleware(s.authService.GetJWTManager()))
	api.Use(s.rateLimitMiddleware())
	if s.authService.RequiresEmailVerification() {
		api.Use(auth.RequireEmailVerified(s.authService))
	}
	{
		// Chart layouts
		api.GET("/layouts", s.handleListLayouts)
		api.POST("/layouts", s.handleCreateLayout)
		api.GET("/layouts/:id", s.handleGetLayout)
		api.PUT("/layouts/:id", s.handleUpdateLayout)
		api.DELETE("/layouts/:id", s.handleDeleteLayout)

		// Snapshots
		api.POST("/layouts/:id/snapshots", s.handleCaptureSnapshot)
		api.GET("/layouts/:id/snapshots", s.handleListSnapshots)
		api.GET("/snapshots/:id", s.handleGetSnapshot)
		api.DELETE("/snapshots/:id", s.handleDeleteSnapshot)

		// AI analyses
		api.POST("/layouts/:id/analyze", s.handleAnalyzeLayout)
		api.POST("/snapshots/:id/analyze", s.handleAnalyzeSnapshot)
		api.GET("/analyses", s.handleListAnalyses)
		api.GET("/analyses/:id", s.handleGetAnalysis)

		// Economic calendar
		api.GET("/calendar", s.handleGetCalendar)

		// Automation schedules. Creation needs a paid tier; reads and
		// updates stay open so a downgraded user can manage leftovers.
		api.GET("/automation/schedules", s.handleListSchedules)
		api.POST("/automation/schedules", auth.RequireTier(string(database.TierTrader)), s.handleCreateSchedule)
		api.GET("/automation/schedules/:id", s.handleGetSchedule)
		api.PUT("/automation/schedules/:id", s.handleUpdateSchedule)
		api.DELETE("/automation/schedules/:id", s.handleDeleteSchedule)
		api.GET("/automation/schedules/:id/runs", s.handleListScheduleRuns)

		// Trading journal
		api.GET("/journal/trades", s.handleListTrades)
		api.POST("/journal/trades", s.handleCreateTrade)
		api.GET("/journal/trades/:id", s.handleGetTrade)
		api.PUT("/journal/trades/:id", s.handleUpdateTrade)
		api.POST("/journal/trades/:id/close", s.handleCloseTrade)
		api.DELETE("/journal/trades/:id", s.handleDeleteTrade)
		api.GET("/journal/stats", s.handleGetJournalStats)

		// User LLM provider keys
		api.GET("/user/ai-keys", s.handleListAIKeys)
		api.POST("/user/ai-keys", s.handleStoreAIKey)
		api.DELETE("/user/ai-keys/:provider", s.handleDeleteAIKey)

		// Billing
		api.POST("/billing/checkout", s.handleCreateCheckout)
		api.POST("/billing/portal", s.handleCreatePortal)

		// Admin
		admin := api.Group("/admin")
		admin.Use(auth.RequireAdmin())
		{
			admin.GET("/users", s.handleAdminListUsers)
			admin.GET("/stats", s.handleAdminStats)
			admin.PUT("/users/:id/tier", s.handleAdminSetTier)
		}
	}
}

// handleHealth reports process liveness and dependency health
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if s.cache != nil {
		resp["cache"] = s.cache.IsHealthy()
	}
	c.JSON(http.StatusOK, resp)
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	if s.cfg.TLSEnabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
