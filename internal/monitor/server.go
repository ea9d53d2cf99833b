// Package monitor exposes the pipeline's health over HTTP: agent status,
// open orders and portfolio balance for dashboards and liveness probes.
package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/internal/execution"
	"github.com/predictbot/gopredict/pkg/config"
	"github.com/predictbot/gopredict/pkg/logger"
)

// StatusSource reports agent health snapshots.
type StatusSource interface {
	Statuses() []agent.Status
}

// Server serves the monitoring endpoints.
type Server struct {
	agents StatusSource
	engine *execution.Engine
	httpd  *http.Server
	log    *logrus.Entry
}

// NewServer wires the monitoring surface. engine may be nil in dry runs.
func NewServer(cfg config.MonitorConfig, agents StatusSource, engine *execution.Engine) *Server {
	s := &Server{
		agents: agents,
		engine: engine,
		log:    logger.WithComponent("monitor"),
	}
	s.httpd = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/agents", s.handleAgents)
	api.GET("/orders", s.handleOrders)
	api.GET("/orders/:orderID", s.handleOrder)
	api.GET("/balance", s.handleBalance)

	return r
}

// Start listens in the background. Returns after the listener is armed.
func (s *Server) Start() {
	go func() {
		s.log.Infof("listening on %s", s.httpd.Addr)
		if err := s.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("monitor server stopped")
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpd.Shutdown(ctx)
}

func (s *Server) handleAgents(c *gin.Context) {
	statuses := s.agents.Statuses()
	healthy := true
	for _, st := range statuses {
		if st.Degraded {
			healthy = false
		}
	}
	c.JSON(http.StatusOK, gin.H{"healthy": healthy, "agents": statuses})
}

func (s *Server) handleOrders(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusOK, gin.H{"orders": []domain.OrderRecord{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": s.engine.OpenOrders()})
}

func (s *Server) handleOrder(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution disabled"})
		return
	}
	record, ok := s.engine.Record(c.Param("orderID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown order"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleBalance(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "execution disabled"})
		return
	}
	snapshot, err := s.engine.GetPortfolioBalance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
