package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/virtuepath/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name     string `json:"name"`
	MaxUsers int    `json:"max_users"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizations.Create(c.Request.Context(), caller.UserID, organizationdomain.CreateOrganizationRequest{
		Name:     strings.TrimSpace(req.Name),
		MaxUsers: req.MaxUsers,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": org})
}

type organizationSignupRequest struct {
	Slug string `json:"slug"`
}

// OrganizationSignup joins the caller to the organization with the given
// slug as an org-practitioner.
func (s *Server) OrganizationSignup(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req organizationSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Slug) == "" {
		AbortWithError(c, newValidationError("slug", "invalid_slug", "slug is required"))
		return
	}

	org, err := s.organizations.JoinBySlug(c.Request.Context(), caller.UserID, req.Slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) GetCurrentOrganization(c *gin.Context) {
	orgID, ok := callerOrganization(c)
	if !ok {
		AbortWithError(c, ErrOrganizationRequired)
		return
	}

	org, err := s.organizations.GetByID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) ListOrganizationMembers(c *gin.Context) {
	orgID, ok := callerOrganization(c)
	if !ok {
		AbortWithError(c, ErrOrganizationRequired)
		return
	}

	members, err := s.organizations.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": members})
}

type setMemberRolesRequest struct {
	Roles []string `json:"roles"`
}

func (s *Server) SetOrganizationMemberRoles(c *gin.Context) {
	caller, _ := callerFromContext(c)
	orgID, ok := callerOrganization(c)
	if !ok {
		AbortWithError(c, ErrOrganizationRequired)
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	var req setMemberRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	roles, err := s.organizations.SetMemberRoles(c.Request.Context(), organizationdomain.SetRolesRequest{
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		UserID:         userID,
		Roles:          req.Roles,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": userID, "roles": roles}})
}

func (s *Server) ArchiveOrganizationMember(c *gin.Context) {
	s.changeMemberStatus(c, s.organizations.Archive, false)
}

func (s *Server) ReactivateOrganizationMember(c *gin.Context) {
	s.changeMemberStatus(c, s.organizations.Reactivate, true)
}

func (s *Server) changeMemberStatus(c *gin.Context, apply func(ctx context.Context, req organizationdomain.MemberRequest) error, active bool) {
	caller, _ := callerFromContext(c)
	orgID, ok := callerOrganization(c)
	if !ok {
		AbortWithError(c, ErrOrganizationRequired)
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	if err := apply(c.Request.Context(), organizationdomain.MemberRequest{
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		UserID:         userID,
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": userID, "is_active": active}})
}
