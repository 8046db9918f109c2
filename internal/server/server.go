// Package server exposes a read-only HTTP view of a crawl working directory.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/core"
	"github.com/agenthands/snowball/internal/core/dedupe"
	"github.com/agenthands/snowball/internal/workdir"
)

type Server struct {
	WorkDir workdir.Context
	Logger  *zap.Logger
}

func NewServer(wc workdir.Context, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{WorkDir: wc, Logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/status", s.Status)
	r.GET("/candidates", s.Candidates)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.Logger.Debug("handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

func (s *Server) Status(c *gin.Context) {
	report, err := core.Inspect(s.WorkDir)
	if err != nil {
		s.Logger.Error("failed to read status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read status"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) Candidates(c *gin.Context) {
	g, err := core.LoadGraph(s.WorkDir)
	if errors.Is(err, core.ErrNoGraph) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Final graph not produced yet"})
		return
	}
	if err != nil {
		s.Logger.Error("failed to load graph", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load graph"})
		return
	}

	groups := dedupe.FindCandidates(g)
	c.JSON(http.StatusOK, gin.H{"groups": groups, "count": len(groups)})
}
