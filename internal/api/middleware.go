package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
	"go.uber.org/zap"
)

// TokenValidator resolves a bearer token to a user id
type TokenValidator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthMiddleware returns a Gin middleware for authentication
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the JWT token from the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		// Check if the Authorization header starts with "Bearer "
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid token format")
			return
		}

		userID, err := validator.Authenticate(c.Request.Context(), parts[1])
		if err != nil || userID == "" {
			abortUnauthorized(c, "Invalid token")
			return
		}

		// Set user ID in the context
		c.Set("userId", userID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:  "error",
		Code:    ierr.ErrCodeUnauthorized,
		Message: message,
	})
}

// ErrorHandler turns the last error attached with c.Error into an ErrorResponse.
// Server-side failures are also reported to Sentry when it is enabled.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.CaptureException(err)
			}
		}

		message := ierr.DisplayMessage(err)
		if status >= http.StatusInternalServerError && message == err.Error() {
			// never leak raw database or provider errors
			message = "An unexpected error occurred"
		}

		c.JSON(status, models.ErrorResponse{
			Status:  "error",
			Code:    ierr.CodeFromErr(err),
			Message: message,
		})
	}
}

// SentryMiddleware captures panics when error reporting is enabled
func SentryMiddleware(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// RequestLogger logs one line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString("userId"); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
