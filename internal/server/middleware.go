package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/virtuepath/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextUserKey           = "user"
	contextUserIDKey         = "user_id"
	contextUserRolesKey      = "user_roles"
	contextOrganizationIDKey = "organization_id"
)

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// rateLimit takes one token from the class bucket of the caller, or of the
// client ip on unauthenticated routes. A nil limiter lets everything through.
func (s *Server) rateLimit(class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		subject := c.GetString(contextUserIDKey)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}

		result, err := s.limiter.Allow(ctx, class, subject)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed",
				zap.String("class", class),
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("rate limit exceeded",
				zap.String("class", class),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, class)
			c.Header("Retry-After", retryAfterSeconds(result.RetryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func retryAfterSeconds(wait time.Duration) string {
	return strconv.Itoa(int(math.Max(1, math.Ceil(wait.Seconds()))))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
