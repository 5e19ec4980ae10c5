// Package api exposes the operator HTTP surface: health, on-demand signal
// generation, threshold introspection, calibration and signal history.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/cache"
	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/database"
	"trade-signal-engine/internal/pipeline"
)

// SignalAPI is the pipeline surface the server exposes
type SignalAPI interface {
	GenerateSignal(ctx context.Context, instrument, timeframe string, analysisWindow int) *pipeline.Signal
	Thresholds() *calibrate.Thresholds
}

// CalibrationAPI triggers an on-demand calibration cycle
type CalibrationAPI interface {
	RunCycle(ctx context.Context, from, to time.Time) (*calibrate.PerformanceMetrics, error)
}

// Server is the operator API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	authCfg    config.AuthConfig

	pipeline   SignalAPI
	calibrator CalibrationAPI
	repo       *database.Repository
	cache      *cache.Service
	logger     zerolog.Logger
	started    time.Time
}

// NewServer creates the API server. repo, cache and calibrator may be nil;
// their endpoints respond 503 when unwired.
func NewServer(
	cfg config.ServerConfig,
	authCfg config.AuthConfig,
	p SignalAPI,
	calibrator CalibrationAPI,
	repo *database.Repository,
	cacheService *cache.Service,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		cfg:        cfg,
		authCfg:    authCfg,
		pipeline:   p,
		calibrator: calibrator,
		repo:       repo,
		cache:      cacheService,
		logger:     logger.With().Str("component", "api").Logger(),
		started:    time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	if s.authCfg.Enabled {
		v1.Use(s.authMiddleware())
	}

	v1.POST("/signals/generate", s.handleGenerateSignal)
	v1.GET("/signals/latest", s.handleLatestSignal)
	v1.GET("/signals/recent", s.handleRecentSignals)
	v1.POST("/signals/outcome", s.handleRecordOutcome)
	v1.GET("/thresholds", s.handleThresholds)
	v1.POST("/calibrate", s.handleCalibrate)
}

// Start blocks serving HTTP until Shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if s.repo != nil {
		dbStatus = "healthy"
		if err := s.repo.HealthCheck(ctx); err != nil {
			dbStatus = "unhealthy"
		}
	}

	cacheStatus := "disabled"
	if s.cache != nil {
		cacheStatus = "healthy"
		if !s.cache.IsHealthy() {
			cacheStatus = "degraded"
		}
	}

	status := http.StatusOK
	statusWord := "healthy"
	if dbStatus == "unhealthy" {
		status = http.StatusServiceUnavailable
		statusWord = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":            statusWord,
		"database":          dbStatus,
		"cache":             cacheStatus,
		"threshold_version": s.pipeline.Thresholds().Version,
		"uptime_seconds":    int(time.Since(s.started).Seconds()),
	})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": true, "message": message})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
