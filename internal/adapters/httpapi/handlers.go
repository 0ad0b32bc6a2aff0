package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

const userHeader = "X-User-ID"

type refreshRequest struct {
	UserID string `json:"user_id"`
}

type feedbackRequest struct {
	ServiceName    string `json:"service_name" binding:"required"`
	OriginalStatus string `json:"original_status"`
	Label          string `json:"label" binding:"required"`
	Note           string `json:"note"`
}

type subscriptionsResponse struct {
	UserID        string                   `json:"user_id"`
	Subscriptions []*core.SubscriptionItem `json:"subscriptions"`
}

// userID resolves the caller from the query, then the header, then the default
func (s *Server) userID(c *gin.Context, fromBody string) string {
	for _, candidate := range []string{fromBody, c.Query("user_id"), c.GetHeader(userHeader)} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return s.defaultUserID
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			s.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSubscriptions(c *gin.Context) {
	userID := s.userID(c, "")
	items, err := s.subscriptions.Subscriptions(c.Request.Context(), userID)
	if err != nil {
		s.internalError(c, "Failed to list subscriptions", err)
		return
	}
	c.JSON(http.StatusOK, subscriptionsResponse{UserID: userID, Subscriptions: items})
}

func (s *Server) handleActiveSubscriptions(c *gin.Context) {
	userID := s.userID(c, "")
	items, err := s.subscriptions.ActiveSubscriptions(c.Request.Context(), userID)
	if err != nil {
		s.internalError(c, "Failed to list active subscriptions", err)
		return
	}
	c.JSON(http.StatusOK, subscriptionsResponse{UserID: userID, Subscriptions: items})
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	userID := s.userID(c, req.UserID)

	// Concurrent refreshes of one user share a single run, which outlives
	// the request that started it
	result, err, shared := s.refreshes.Do(userID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), refreshTimeout)
		defer cancel()
		return s.subscriptions.Refresh(ctx, userID, func(percent int) {
			s.logger.Debug("Refresh progress", zap.String("user_id", userID), zap.Int("percent", percent))
		})
	})
	if err != nil {
		if errors.Is(err, core.ErrRefreshFailed) {
			s.logger.Warn("Refresh failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		s.internalError(c, "Refresh failed", err)
		return
	}

	report := result.(*core.RefreshReport)
	s.logger.Info("Refresh completed",
		zap.String("user_id", userID),
		zap.Int("fetched", report.Fetched),
		zap.Bool("shared", shared))
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record := &core.FeedbackRecord{
		ServiceName:    req.ServiceName,
		OriginalStatus: req.OriginalStatus,
		Label:          core.FeedbackLabel(req.Label),
		Note:           req.Note,
	}
	if err := s.subscriptions.SubmitFeedback(c.Request.Context(), record); err != nil {
		if errors.Is(err, core.ErrInvalidFeedback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.internalError(c, "Failed to submit feedback", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": record.ID, "label": record.Label})
}

func (s *Server) handleProcessFeedback(c *gin.Context) {
	processed, err := s.feedback.ProcessPending(c.Request.Context())
	if err != nil {
		s.internalError(c, "Failed to process feedback", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
