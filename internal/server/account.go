package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/virtuepath/internal/observability/logger"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"go.uber.org/zap"
)

const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent."

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword answers the same way whether or not the address is known.
func (s *Server) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.authSvc.ForgotPassword(ctx, strings.TrimSpace(req.Email)); err != nil {
		logger.FromContext(ctx).Warn("forgot password request failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
}

type verifyResetTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) VerifyResetToken(c *gin.Context) {
	var req verifyResetTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	claims, err := s.authSvc.VerifyResetToken(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"user_id":    claims.UserID,
		"email":      claims.Email,
		"expires_at": claims.ExpiresAt,
	})
}

func (s *Server) GetMe(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	profile, err := s.profiles.Get(c.Request.Context(), caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":      profile,
		"role_info":    caller.Roles,
		"organization": caller.OrganizationContext(),
	})
}

type updateMeRequest struct {
	DisplayName *string `json:"display_name"`
}

func (s *Server) UpdateMe(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.profiles.UpdateSettings(c.Request.Context(), caller.UserID, profiledomain.UpdateSettingsRequest{
		DisplayName: req.DisplayName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (s *Server) ListVirtues(c *gin.Context) {
	catalog, err := s.virtues.Catalog(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": catalog})
}
