package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/internal/middleware"
)

// Matcher runs a match request.
type Matcher interface {
	Search(ctx context.Context, spec domain.SearchSpecification) (*domain.MatchResponse, error)
}

// Reconciler re-verifies an identifier against submitted demographics.
type Reconciler interface {
	Reconcile(ctx context.Context, identifier string, spec domain.PersonSpecification) (*domain.ReconciliationRecord, error)
}

// VersionReporter exposes the running algorithm version.
type VersionReporter interface {
	GetState() domain.AlgorithmVersionState
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the services the HTTP surface adapts.
type Dependencies struct {
	Matcher    Matcher
	Reconciler Reconciler
	Versions   VersionReporter
	// Repository is optional; reconciliation history routes are registered only when set.
	Repository domain.ReconciliationRepository
	Gatherer   prometheus.Gatherer
	Checks     map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// ReconcileRequest is the body of POST /api/v1/reconcile.
type ReconcileRequest struct {
	Identifier string `json:"identifier"`
	domain.PersonSpecification
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.AuditLogger(logger))

	server := &Server{
		configManager: configManager,
		deps:          deps,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/match", s.handleMatch)
		v1.POST("/reconcile", s.handleReconcile)
		v1.GET("/algorithm-version", s.handleAlgorithmVersion)

		if s.deps.Repository != nil {
			v1.GET("/reconciliations", s.handleListReconciliations)
			v1.GET("/reconciliations/:id", s.handleGetReconciliation)
		}
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))

	for name, check := range s.deps.Checks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}
	if s.deps.Versions != nil {
		body["algorithmVersion"] = s.deps.Versions.GetState().Version
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}

	c.JSON(status, body)
}

// handleMatch handles match requests
func (s *Server) handleMatch(c *gin.Context) {
	var spec domain.SearchSpecification
	if err := c.ShouldBindJSON(&spec); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid match request", err)
		return
	}

	response, err := s.deps.Matcher.Search(c.Request.Context(), spec)
	if err != nil {
		if errors.Is(err, domain.ErrVersionMismatch) {
			s.abort(c, http.StatusConflict, domain.ErrCodeVersionMismatch, err.Error(), nil)
			return
		}
		s.abort(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "match failed", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// handleReconcile handles reconciliation requests
func (s *Server) handleReconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid reconciliation request", err)
		return
	}

	record, err := s.deps.Reconciler.Reconcile(c.Request.Context(), req.Identifier, req.PersonSpecification)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "reconciliation failed", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleAlgorithmVersion reports the running algorithm version
func (s *Server) handleAlgorithmVersion(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Versions.GetState())
}

// handleGetReconciliation returns a stored reconciliation record
func (s *Server) handleGetReconciliation(c *gin.Context) {
	record, err := s.deps.Repository.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abort(c, http.StatusNotFound, domain.ErrCodeInvalidInput, "reconciliation record not found", nil)
			return
		}
		s.abort(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to load reconciliation record", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleListReconciliations lists stored reconciliations for an identifier
func (s *Server) handleListReconciliations(c *gin.Context) {
	identifier := c.Query("identifier")
	if identifier == "" {
		s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "identifier query parameter is required", nil)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}

	records, err := s.deps.Repository.ListByIdentifier(c.Request.Context(), identifier, limit)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to list reconciliation records", err)
		return
	}
	if records == nil {
		records = []*domain.ReconciliationRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) abort(c *gin.Context, status int, code, message string, err error) {
	requestID := c.GetString(middleware.RequestIDKey)
	serviceErr := domain.NewServiceError(code, message, "", requestID)

	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"code":       code,
			"error":      err.Error(),
		}).Warn("Request failed")
		if status < http.StatusInternalServerError {
			serviceErr.Details = err.Error()
		}
	}

	c.AbortWithStatusJSON(status, serviceErr)
}
