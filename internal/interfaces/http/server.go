// Package http is the HTTP adapter for the approval engine: a thin layer
// translating requests into application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procurehq/approval-engine/internal/application/service"
	"github.com/procurehq/approval-engine/internal/domain/event"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer creates a new HTTP server wired to the application services
func NewServer(
	config ServerConfig,
	approvalService service.ApprovalService,
	templateService service.TemplateService,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		logger: logger,
	}

	router.Use(gin.Recovery())
	router.Use(correlationMiddleware())
	router.Use(server.loggingMiddleware())

	handlers := NewHandlers(approvalService, templateService, logger)
	server.setupRoutes(handlers)

	return server
}

// correlationMiddleware threads a per-request correlation ID into the request
// context so every domain event dispatched while handling the call joins the
// same chain. Callers may supply their own via X-Request-ID.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(event.ContextWithCorrelationID(c.Request.Context(), id))
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) setupRoutes(h *Handlers) {
	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	{
		requests := api.Group("/requests")
		{
			requests.POST("", h.CreateRequest)
			requests.GET("", h.ListRequests)
			requests.GET("/:id", h.GetRequest)
			requests.GET("/:id/history", h.GetHistory)
			requests.PUT("/:id/fields", h.SetFieldValue)
			requests.POST("/:id/attachments", h.AddAttachment)
			requests.POST("/:id/submit", h.SubmitRequest)
			requests.POST("/:id/approve", h.ApproveRequest)
			requests.POST("/:id/reject", h.RejectRequest)
			requests.POST("/:id/complete", h.CompleteRequest)
			requests.POST("/:id/resubmit", h.ResubmitRequest)
			requests.POST("/:id/archive", h.ArchiveRequest)
		}

		templates := api.Group("/templates")
		{
			templates.POST("/forms", h.CreateFormTemplate)
			templates.GET("/forms/:id", h.GetFormTemplate)
			templates.PATCH("/forms/:id", h.EditFormTemplate)
			templates.POST("/workflows", h.CreateWorkflowTemplate)
			templates.GET("/workflows/:id", h.GetWorkflowTemplate)
		}
	}
}

// Start starts the HTTP server and blocks until the context is cancelled or
// the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
