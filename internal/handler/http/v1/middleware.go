package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/resqlink/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// RequestLogger пишет access-лог в logrus вместо стандартного логгера gin
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"http_method": c.Request.Method,
			"path":        path,
			"route":       c.FullPath(),
			"status":      status,
			"latency_ms":  time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("HTTP request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("HTTP request rejected")
		default:
			entry.Info("HTTP request served")
		}
	}
}

// RateLimitMiddleware ограничивает число запросов с одного IP
func RateLimitMiddleware(limiter *ratelimit.ClientLimiter, log *logrus.Logger) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(limiter.RetryAfter().Round(time.Second).Seconds()))
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if limiter.Allow(ip) {
			c.Next()
			return
		}

		log.WithField("client_ip", ip).Warn("Rate limit exceeded")
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error:     "too many requests from this IP, please try again later",
			Retryable: true,
		})
	}
}
