package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	sponsordomain "github.com/smallbiznis/virtuepath/internal/sponsor/domain"
)

func (s *Server) ListSponsorRelationships(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	connections, err := s.sponsors.List(c.Request.Context(), caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": connections})
}

type inviteSponsorRequest struct {
	SponsorEmail string `json:"sponsor_email"`
}

func (s *Server) InviteSponsor(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req inviteSponsorRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SponsorEmail) == "" {
		AbortWithError(c, newValidationError("sponsor_email", "invalid_email", "sponsor_email is required"))
		return
	}

	result, err := s.sponsors.Invite(c.Request.Context(), sponsordomain.InviteRequest{
		PractitionerID: caller.UserID,
		SponsorEmail:   req.SponsorEmail,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

type resendSponsorInviteRequest struct {
	RelationshipID string `json:"relationship_id"`
}

func (s *Server) ResendSponsorInvite(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req resendSponsorInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	relationshipID, err := uuid.Parse(strings.TrimSpace(req.RelationshipID))
	if err != nil {
		AbortWithError(c, newValidationError("relationship_id", "invalid_relationship_id", "invalid relationship_id"))
		return
	}

	result, err := s.sponsors.ResendEmail(c.Request.Context(), caller.UserID, relationshipID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) AcceptSponsorRelationship(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	relationshipID, ok := uuidParam(c, "relationshipId")
	if !ok {
		return
	}

	relationship, err := s.sponsors.Accept(c.Request.Context(), caller.UserID, relationshipID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": relationship})
}

func (s *Server) DeactivateSponsorRelationship(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	relationshipID, ok := uuidParam(c, "relationshipId")
	if !ok {
		return
	}

	relationship, err := s.sponsors.Deactivate(c.Request.Context(), caller.UserID, relationshipID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": relationship})
}
