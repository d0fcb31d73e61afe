package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	assignmentdomain "github.com/smallbiznis/virtuepath/internal/assignment/domain"
)

type createAssignmentRequest struct {
	PractitionerID string `json:"practitioner_id"`
	SupervisorID   string `json:"supervisor_id"`
	SupervisorRole string `json:"supervisor_role"`
	Reason         string `json:"reason"`
}

func (s *Server) CreateAssignment(c *gin.Context) {
	caller, _ := callerFromContext(c)
	orgID, ok := callerOrganization(c)
	if !ok {
		AbortWithError(c, ErrOrganizationRequired)
		return
	}

	var req createAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	practitionerID, err := uuid.Parse(strings.TrimSpace(req.PractitionerID))
	if err != nil {
		AbortWithError(c, assignmentdomain.ErrInvalidPractitioner)
		return
	}
	supervisorID, err := uuid.Parse(strings.TrimSpace(req.SupervisorID))
	if err != nil {
		AbortWithError(c, assignmentdomain.ErrInvalidSupervisor)
		return
	}

	assignment, err := s.assignments.Assign(c.Request.Context(), assignmentdomain.AssignRequest{
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		PractitionerID: practitionerID,
		SupervisorID:   supervisorID,
		SupervisorRole: strings.TrimSpace(req.SupervisorRole),
		Reason:         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": assignment})
}

func (s *Server) RemoveAssignment(c *gin.Context) {
	caller, _ := callerFromContext(c)
	orgID, ok := callerOrganization(c)
	if !ok {
		AbortWithError(c, ErrOrganizationRequired)
		return
	}
	assignmentID, ok := uuidParam(c, "assignmentId")
	if !ok {
		return
	}

	if err := s.assignments.Remove(c.Request.Context(), assignmentdomain.RemoveRequest{
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		AssignmentID:   assignmentID,
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListPractitionerAssignments(c *gin.Context) {
	practitionerID, ok := uuidParam(c, "practitionerId")
	if !ok {
		return
	}

	history, err := s.assignments.History(c.Request.Context(), practitionerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}
