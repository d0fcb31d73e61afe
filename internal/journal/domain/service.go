package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *Entry) error
	FindOwned(ctx context.Context, practitionerID, id uuid.UUID) (*Entry, error)
	Update(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, practitionerID, id uuid.UUID) (int64, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

type ListFilter struct {
	PractitionerID uuid.UUID
	VirtueID       *int64
	After          *pagination.Cursor
	Limit          int
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Entry, error)
	Update(ctx context.Context, req UpdateRequest) (*Entry, error)
	Delete(ctx context.Context, practitionerID, entryID uuid.UUID) error
	// List returns the caller's own entries.
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// ListForPractitioner returns another practitioner's entries. The caller
	// must already hold practitioner_data:read on practitionerID.
	ListForPractitioner(ctx context.Context, viewerID uuid.UUID, req ListRequest) (ListResponse, error)
}

type CreateRequest struct {
	PractitionerID uuid.UUID
	VirtueID       *int64
	Title          string
	Content        string
}

type UpdateRequest struct {
	PractitionerID uuid.UUID
	EntryID        uuid.UUID
	VirtueID       *int64
	Title          *string
	Content        *string
}

type ListRequest struct {
	pagination.Pagination
	PractitionerID uuid.UUID
	VirtueID       *int64
}

type ListResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

var (
	ErrEntryNotFound    = errors.New("journal_entry_not_found")
	ErrInvalidTitle     = errors.New("invalid_title")
	ErrInvalidContent   = errors.New("invalid_content")
	ErrInvalidVirtue    = errors.New("invalid_virtue")
	ErrInvalidOwner     = errors.New("invalid_practitioner")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
