// Package server exposes the orchestrator over HTTP for the web
// front end: submit, poll, regenerate, history, and image download.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coverspark/coverspark/internal/config"
	"github.com/coverspark/coverspark/internal/orchestrator"
)

type Server struct {
	engine *gin.Engine
	orch   *orchestrator.Orchestrator
	log    *zap.SugaredLogger
	addr   string
}

func New(cfg config.ServerConfig, orch *orchestrator.Orchestrator, log *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	s := &Server{
		engine: engine,
		orch:   orch,
		log:    log,
		addr:   cfg.Addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthcheck", s.handleHealthCheck)

	api := s.engine.Group("/api")
	{
		api.POST("/sessions", s.handleSubmit)
		api.GET("/sessions", s.handleHistory)
		api.DELETE("/sessions/:id", s.handleDelete)
		api.GET("/sessions/:id/cards/:index/image", s.handleCardImage)

		current := api.Group("/sessions/current")
		{
			current.GET("", s.handleSnapshot)
			current.POST("/draft", s.handleNewDraft)
			current.POST("/select/:id", s.handleSelect)
			current.POST("/reference", s.handleAttachReference)
			current.DELETE("/reference", s.handleClearReference)
			current.POST("/cards/:index/regenerate", s.handleRegenerate)
			current.PATCH("/cards/:index/prompt", s.handleUpdatePrompt)
		}
	}
}

// Run serves until ctx is cancelled, then drains in-flight
// generations so their final persistence writes land.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.orch.Wait()
	return <-errCh
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		log.Infow("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
