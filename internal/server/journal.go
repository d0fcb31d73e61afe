package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	journaldomain "github.com/smallbiznis/virtuepath/internal/journal/domain"
	"github.com/smallbiznis/virtuepath/pkg/db/pagination"
)

type listJournalQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	VirtueID  string `form:"virtue_id"`
}

func bindJournalQuery(c *gin.Context, practitionerID uuid.UUID) (journaldomain.ListRequest, bool) {
	var query listJournalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return journaldomain.ListRequest{}, false
	}
	virtueID, err := parseOptionalInt64(query.VirtueID)
	if err != nil {
		AbortWithError(c, journaldomain.ErrInvalidVirtue)
		return journaldomain.ListRequest{}, false
	}
	return journaldomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		PractitionerID: practitionerID,
		VirtueID:       virtueID,
	}, true
}

func (s *Server) ListJournalEntries(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	req, ok := bindJournalQuery(c, caller.UserID)
	if !ok {
		return
	}

	resp, err := s.journals.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

// ListPractitionerJournal serves staff, supervisors and sponsors; the guard
// has already checked practitioner_data:read on the path id.
func (s *Server) ListPractitionerJournal(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	practitionerID, ok := uuidParam(c, "practitionerId")
	if !ok {
		return
	}
	req, ok := bindJournalQuery(c, practitionerID)
	if !ok {
		return
	}

	resp, err := s.journals.ListForPractitioner(c.Request.Context(), caller.UserID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

type createJournalEntryRequest struct {
	VirtueID *int64 `json:"virtue_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

func (s *Server) CreateJournalEntry(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createJournalEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.journals.Create(c.Request.Context(), journaldomain.CreateRequest{
		PractitionerID: caller.UserID,
		VirtueID:       req.VirtueID,
		Title:          req.Title,
		Content:        req.Content,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

type updateJournalEntryRequest struct {
	VirtueID *int64  `json:"virtue_id"`
	Title    *string `json:"title"`
	Content  *string `json:"content"`
}

func (s *Server) UpdateJournalEntry(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	entryID, ok := uuidParam(c, "entryId")
	if !ok {
		return
	}

	var req updateJournalEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.journals.Update(c.Request.Context(), journaldomain.UpdateRequest{
		PractitionerID: caller.UserID,
		EntryID:        entryID,
		VirtueID:       req.VirtueID,
		Title:          req.Title,
		Content:        req.Content,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) DeleteJournalEntry(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	entryID, ok := uuidParam(c, "entryId")
	if !ok {
		return
	}

	if err := s.journals.Delete(c.Request.Context(), caller.UserID, entryID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
