package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	PageToken      string `form:"page_token"`
	PageSize       int    `form:"page_size"`
	Action         string `form:"action"`
	OrganizationID string `form:"organization_id"`
}

// ListAuditLogs is the operator view across every organization.
func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, err := parseOptionalUUID(query.OrganizationID)
	if err != nil {
		AbortWithError(c, newValidationError("organization_id", "invalid_organization_id", "invalid organization_id"))
		return
	}
	s.listAuditLogs(c, query, orgID)
}

// ListOrganizationAuditLogs is pinned to the caller's organization.
func (s *Server) ListOrganizationAuditLogs(c *gin.Context) {
	orgID, ok := callerOrganization(c)
	if !ok {
		AbortWithError(c, ErrOrganizationRequired)
		return
	}

	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.listAuditLogs(c, query, &orgID)
}

func (s *Server) listAuditLogs(c *gin.Context, query listAuditLogsQuery, orgID *uuid.UUID) {
	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		OrganizationID: orgID,
		Action:         strings.TrimSpace(query.Action),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
