package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/mikey/subscription-tracker/internal/monitoring"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	shutdownTimeout = 10 * time.Second
	refreshTimeout  = 10 * time.Minute
)

// SubscriptionService is the part of core.RefreshService the API serves
type SubscriptionService interface {
	Refresh(ctx context.Context, userID string, onProgress func(percent int)) (*core.RefreshReport, error)
	Subscriptions(ctx context.Context, userID string) ([]*core.SubscriptionItem, error)
	ActiveSubscriptions(ctx context.Context, userID string) ([]*core.SubscriptionItem, error)
	SubmitFeedback(ctx context.Context, f *core.FeedbackRecord) error
}

// FeedbackRunner folds pending feedback into the pattern store
type FeedbackRunner interface {
	ProcessPending(ctx context.Context) (int, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server exposes the tracker over HTTP
type Server struct {
	listenAddr    string
	defaultUserID string
	subscriptions SubscriptionService
	feedback      FeedbackRunner
	health        HealthChecker
	metrics       *monitoring.Metrics
	logger        *zap.Logger

	engine    *gin.Engine
	server    *http.Server
	refreshes singleflight.Group
}

// NewServer creates a new HTTP API server
func NewServer(
	listenAddr string,
	defaultUserID string,
	subscriptions SubscriptionService,
	feedback FeedbackRunner,
	health HealthChecker,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		listenAddr:    listenAddr,
		defaultUserID: defaultUserID,
		subscriptions: subscriptions,
		feedback:      feedback,
		health:        health,
		metrics:       metrics,
		logger:        logger,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts serving HTTP requests
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}

	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP API starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(s.recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.HTTPHandler()))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/subscriptions", s.handleSubscriptions)
	v1.GET("/subscriptions/active", s.handleActiveSubscriptions)
	v1.POST("/refresh", s.handleRefresh)
	v1.POST("/feedback", s.handleSubmitFeedback)
	v1.POST("/feedback/process", s.handleProcessFeedback)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(status), duration)
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("HTTP request failed", fields...)
		} else {
			s.logger.Debug("HTTP request served", fields...)
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic recovered",
					zap.Any("error", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
