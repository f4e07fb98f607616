// Package httpapi serves the control surface: health, engine status and
// start/stop, ledger and audit inspection, and a websocket stream of the
// operator narration lines.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"limitless/internal/audit"
	"limitless/internal/engine"
	"limitless/internal/events"
	"limitless/internal/ledger"
	"limitless/internal/logger"
)

type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the control API dependencies.
type ServerConfig struct {
	Addr         string
	ControlToken string
	Engine       *engine.Engine
	Ledger       *ledger.Ledger
	Audit        *audit.Store
	Hub          *events.Hub
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("http server requires an engine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8085"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Engine.Status())
	})
	api.GET("/ledger", func(c *gin.Context) {
		if cfg.Ledger == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ledger not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"buckets": cfg.Ledger.Buckets()})
	})
	api.GET("/audit/recent", func(c *gin.Context) {
		if cfg.Audit == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "audit not configured"})
			return
		}
		recs, err := cfg.Audit.Recent(50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	control := api.Group("/engine", tokenGuard(cfg.ControlToken))
	control.POST("/start", func(c *gin.Context) {
		cfg.Engine.Start()
		c.JSON(http.StatusOK, gin.H{"running": true})
	})
	control.POST("/stop", func(c *gin.Context) {
		cfg.Engine.Stop()
		c.JSON(http.StatusOK, gin.H{"running": false})
	})

	if cfg.Hub != nil {
		router.GET("/ws/events", streamEvents(cfg.Hub))
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

// tokenGuard rejects control calls without the configured bearer token. An
// empty token leaves the control surface open, for local dry runs only.
func tokenGuard(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid control token"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
