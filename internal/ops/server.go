// Package ops is the operator-facing HTTP surface: live status, window
// stats, alerts, and hot alert-rule updates.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/alerting"
	"github.com/gatelink/gogate/internal/metrics"
	"github.com/gatelink/gogate/internal/orchestrator"
)

var log = logrus.WithField("component", "ops_server")

type Server struct {
	orch      *orchestrator.Orchestrator
	collector *metrics.Collector
	alerts    *alerting.Engine

	engine *gin.Engine
	srv    *http.Server
}

func NewServer(orch *orchestrator.Orchestrator, collector *metrics.Collector, alerts *alerting.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		orch:      orch,
		collector: collector,
		alerts:    alerts,
		engine:    gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/metrics", s.handleMetrics)
	api.GET("/alerts", s.handleAlerts)
	api.GET("/rules", s.handleRules)
	api.POST("/rules/:name", s.handleRuleUpdate)
	api.POST("/gateways/:name/reset", s.handleGatewayReset)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Start serves on addr without blocking.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.engine}
	errC := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("ops server: %v", err)
			errC <- err
		}
	}()
	select {
	case err := <-errC:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Infof("ops server listening on %s", addr)
		return nil
	}
}

// Shutdown drains in-flight requests under ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleStatus(c *gin.Context) {
	primary, _ := s.orch.PrimaryGateway()
	c.JSON(http.StatusOK, gin.H{
		"gateways": s.orch.Status(),
		"primary":  primary,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	stats := s.collector.AllStats()
	best, _ := s.collector.BestLatencyGateway()
	c.JSON(http.StatusOK, gin.H{
		"gateways":    stats,
		"bestLatency": best,
	})
}

func (s *Server) handleAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active":  s.alerts.ActiveAlerts(),
		"history": s.alerts.History(),
	})
}

func (s *Server) handleRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.alerts.Rules()})
}

type ruleUpdateRequest struct {
	Threshold float64 `json:"threshold" binding:"required"`
	Enabled   bool    `json:"enabled"`
}

func (s *Server) handleRuleUpdate(c *gin.Context) {
	var req ruleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.alerts.UpdateRule(c.Param("name"), req.Threshold, req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleGatewayReset(c *gin.Context) {
	name := c.Param("name")
	s.orch.Supervisor().ResetBudget(name)
	c.JSON(http.StatusOK, gin.H{"status": "reset", "gateway": name})
}
