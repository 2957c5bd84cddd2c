package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clipforge/internal/events"
	"clipforge/internal/logging"
	"clipforge/internal/metrics"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/workflow"
)

// WorkerSource reports the stats of the local worker.
type WorkerSource interface {
	Stats() workflow.WorkerStats
}

// HealthSource reports stage dependency health.
type HealthSource interface {
	Health(ctx context.Context) []stage.Health
}

// Dependencies are the collaborators behind the routes. Only Queue is
// required.
type Dependencies struct {
	Queue   *queue.Queue
	Workers []WorkerSource
	Health  HealthSource
	Metrics *metrics.Metrics
	Hub     *events.Hub
	Events  events.Publisher
	Token   string
	Logger  *slog.Logger
}

// Server owns the gin engine and its listener.
type Server struct {
	deps   Dependencies
	logger *slog.Logger
	engine *gin.Engine

	server   *http.Server
	listener net.Listener
}

// New builds the router.
func New(deps Dependencies) (*Server, error) {
	if deps.Queue == nil {
		return nil, errors.New("api: queue required")
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{deps: deps, logger: logging.NewComponentLogger(logger, "api")}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestID(), s.accessLog())

	router.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	authed := router.Group("/", s.auth())
	authed.POST("/tasks", s.handleEnqueue)
	authed.GET("/tasks/:id", s.handleStatus)
	authed.GET("/stats", s.handleStats)
	if s.deps.Hub != nil {
		authed.GET("/ws/events", gin.WrapH(s.deps.Hub))
	}
	return router
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on bind and serves until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context, bind string) error {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return errors.New("api: bind address required")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and closes websocket clients.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
}

// auth validates bearer tokens. An empty token disables the check.
func (s *Server) auth() gin.HandlerFunc {
	token := s.deps.Token
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logging.WithContext(c.Request.Context(), s.logger).Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(started)))
	}
}
