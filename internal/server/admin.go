package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	organizationdomain "github.com/smallbiznis/virtuepath/internal/organization/domain"
)

const (
	migrateActionJoin  = "join"
	migrateActionLeave = "leave"
)

type migrateUserRequest struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	Action         string `json:"action"`
}

// MigrateUser moves a user into or out of an organization on behalf of an
// operator. Counter changes follow the same rules as self-service joins.
func (s *Server) MigrateUser(c *gin.Context) {
	var req migrateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		AbortWithError(c, newValidationError("userId", "invalid_user", "invalid userId"))
		return
	}
	orgID, err := parseOptionalUUID(req.OrganizationID)
	if err != nil {
		AbortWithError(c, newValidationError("organizationId", "invalid_organization", "invalid organizationId"))
		return
	}

	ctx := c.Request.Context()
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case migrateActionJoin:
		if orgID == nil {
			AbortWithError(c, newValidationError("organizationId", "invalid_organization", "organizationId is required to join"))
			return
		}
		org, err := s.organizations.Join(ctx, organizationdomain.JoinRequest{
			OrganizationID: *orgID,
			UserID:         userID,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": userID, "action": migrateActionJoin, "organization": org}})
	case migrateActionLeave:
		leave := organizationdomain.LeaveRequest{UserID: userID}
		if orgID != nil {
			leave.OrganizationID = *orgID
		}
		if err := s.organizations.Leave(ctx, leave); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": userID, "action": migrateActionLeave}})
	default:
		AbortWithError(c, ErrInvalidMigrateAction)
	}
}

func (s *Server) RecountOrganization(c *gin.Context) {
	orgID, ok := uuidParam(c, "organizationId")
	if !ok {
		return
	}

	result, err := s.organizations.Recount(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) DeleteSponsorRelationship(c *gin.Context) {
	relationshipID, ok := uuidParam(c, "relationshipId")
	if !ok {
		return
	}

	if err := s.sponsors.HardDelete(c.Request.Context(), relationshipID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
