package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/virtuepath/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	authdomain "github.com/smallbiznis/virtuepath/internal/auth/domain"
	journaldomain "github.com/smallbiznis/virtuepath/internal/journal/domain"
	organizationdomain "github.com/smallbiznis/virtuepath/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/virtuepath/internal/payment/domain"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	sponsordomain "github.com/smallbiznis/virtuepath/internal/sponsor/domain"
	virtuedomain "github.com/smallbiznis/virtuepath/internal/virtue/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

// PermissionDeniedError is a guard denial; the body echoes what was missing.
type PermissionDeniedError struct {
	Resource string
	Action   string
}

func (e *PermissionDeniedError) Error() string {
	return "permission_denied"
}

func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrForbidden
}

type requiredPermission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type errorResponse struct {
	Error              string              `json:"error"`
	Type               string              `json:"type"`
	RequiredPermission *requiredPermission `json:"required_permission,omitempty"`
	Errors             []ValidationError   `json:"errors,omitempty"`
}

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrAccountInactive      = errors.New("account_inactive")
	ErrOrganizationRequired = errors.New("organization_required")
	ErrConflict             = errors.New("conflict")
	ErrInternal             = errors.New("internal_error")
	ErrNotFound             = errors.New("not_found")
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrRateLimited          = errors.New("rate_limited")
	ErrServiceUnavailable   = errors.New("service_unavailable")
	ErrContextUnavailable   = errors.New("context_unavailable")
	ErrInvalidMigrateAction = errors.New("invalid_migrate_action")
)

// errorRule maps one sentinel to its response. Message overrides the
// generic text for the status class.
type errorRule struct {
	err     error
	status  int
	message string
}

var unauthorizedRules = []errorRule{
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{authdomain.ErrMissingToken, http.StatusUnauthorized, "missing bearer token"},
	{authdomain.ErrInvalidToken, http.StatusUnauthorized, "invalid token"},
	{authdomain.ErrExpiredToken, http.StatusUnauthorized, "token expired"},
	{authdomain.ErrWrongTokenUsage, http.StatusUnauthorized, "invalid token"},
	{authdomain.ErrInvalidSubject, http.StatusUnauthorized, "invalid token"},
}

var forbiddenRules = []errorRule{
	{ErrAccountInactive, http.StatusForbidden, "account inactive"},
	{ErrOrganizationRequired, http.StatusForbidden, "organization membership required"},
	{sponsordomain.ErrNotRelationshipMember, http.StatusForbidden, "not a party to this relationship"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
}

var notFoundRules = []errorRule{
	{profiledomain.ErrProfileNotFound, http.StatusNotFound, "profile not found"},
	{organizationdomain.ErrOrganizationNotFound, http.StatusNotFound, "organization not found"},
	{organizationdomain.ErrNotMember, http.StatusNotFound, "user is not a member of this organization"},
	{sponsordomain.ErrSponsorNotFound, http.StatusNotFound, "a user with that email does not exist"},
	{sponsordomain.ErrRelationshipNotFound, http.StatusNotFound, "sponsor relationship not found"},
	{assignmentdomain.ErrAssignmentNotFound, http.StatusNotFound, "assignment not found"},
	{journaldomain.ErrEntryNotFound, http.StatusNotFound, "journal entry not found"},
	{virtuedomain.ErrVirtueNotFound, http.StatusNotFound, "virtue not found"},
	{ErrNotFound, http.StatusNotFound, "not found"},
	{gorm.ErrRecordNotFound, http.StatusNotFound, "not found"},
}

var conflictRules = []errorRule{
	{organizationdomain.ErrCapacityReached, http.StatusConflict, "organization has reached its maximum user capacity"},
	{organizationdomain.ErrAlreadyMember, http.StatusConflict, "user already belongs to an organization"},
	{organizationdomain.ErrSlugUnavailable, http.StatusConflict, "could not allocate an organization slug"},
	{organizationdomain.ErrMemberInactive, http.StatusConflict, "member is already archived"},
	{organizationdomain.ErrMemberAlreadyActive, http.StatusConflict, "member is already active"},
	{organizationdomain.ErrLastAdmin, http.StatusConflict, "organization must keep at least one admin"},
	{sponsordomain.ErrRelationshipExists, http.StatusConflict, "a sponsor relationship with this user already exists"},
	{sponsordomain.ErrInvalidTransition, http.StatusConflict, "relationship cannot make that transition"},
	{assignmentdomain.ErrAssignmentAlreadyRemoved, http.StatusConflict, "assignment already removed"},
	{ErrConflict, http.StatusConflict, "conflict"},
}

var validationSentinels = []error{
	ErrInvalidRequest,
	ErrInvalidMigrateAction,
	organizationdomain.ErrInvalidName,
	organizationdomain.ErrInvalidMaxUsers,
	organizationdomain.ErrInvalidUser,
	organizationdomain.ErrInvalidOrganization,
	organizationdomain.ErrInvalidRole,
	organizationdomain.ErrSelfAction,
	sponsordomain.ErrSelfInvite,
	sponsordomain.ErrInvalidEmail,
	assignmentdomain.ErrInvalidSupervisorRole,
	assignmentdomain.ErrInvalidPractitioner,
	assignmentdomain.ErrInvalidSupervisor,
	assignmentdomain.ErrSelfAssignment,
	journaldomain.ErrInvalidTitle,
	journaldomain.ErrInvalidContent,
	journaldomain.ErrInvalidVirtue,
	journaldomain.ErrInvalidOwner,
	journaldomain.ErrInvalidPageToken,
	profiledomain.ErrInvalidUser,
	profiledomain.ErrInvalidEmail,
	profiledomain.ErrInvalidDisplayName,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidCurrency,
	paymentdomain.ErrInvalidUser,
	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
	auditdomain.ErrInvalidAction,
	auditdomain.ErrInvalidPageToken,
	authdomain.ErrInvalidEmail,
}

var validationMessages = map[string]string{
	"invalid_request":      "invalid request",
	"self_invite":          "you cannot invite yourself as a sponsor",
	"self_assignment":      "a practitioner cannot supervise themselves",
	"self_action":          "you cannot perform this action on yourself",
	"invalid_signature":    "webhook signature verification failed",
	"invalid_max_users":    "max_users must be between 1 and 10000",
	"invalid_name":         "name must be between 1 and 120 characters",
	"invalid_role":         "roles must be organization roles",
	"invalid_page_token":   "invalid page token",
	"invalid_amount":       "amount is out of range",
	"invalid_currency":     "currency must be a three letter ISO code",
	"invalid_practitioner": "invalid practitioner",
}

var unavailableRules = []errorRule{
	{ErrRateLimited, http.StatusTooManyRequests, "too many requests"},
	{paymentdomain.ErrProviderUnavailable, http.StatusBadGateway, "payment provider unavailable"},
	{paymentdomain.ErrProviderNotConfigured, http.StatusServiceUnavailable, "payments are not configured"},
	{authdomain.ErrNotConfigured, http.StatusServiceUnavailable, "authentication is not configured"},
	{ErrServiceUnavailable, http.StatusServiceUnavailable, "service unavailable"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return internalError()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		message := "validation error"
		if len(vErr.Errors) == 1 {
			message = vErr.Errors[0].Message
		}
		return http.StatusBadRequest, errorResponse{
			Error:  message,
			Type:   "validation_error",
			Errors: vErr.Errors,
		}
	}

	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, errorResponse{
			Error: "insufficient permissions",
			Type:  "forbidden",
			RequiredPermission: &requiredPermission{
				Resource: denied.Resource,
				Action:   denied.Action,
			},
		}
	}

	if code, ok := validationErrorCode(err); ok {
		message := validationErrorMessage(code)
		return http.StatusBadRequest, errorResponse{
			Error: message,
			Type:  "validation_error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: message,
				},
			},
		}
	}

	groups := []struct {
		kind  string
		rules []errorRule
	}{
		{"unauthorized", unauthorizedRules},
		{"forbidden", forbiddenRules},
		{"not_found", notFoundRules},
		{"conflict", conflictRules},
	}
	for _, group := range groups {
		if rule, ok := matchRule(err, group.rules); ok {
			return rule.status, errorResponse{Error: rule.message, Type: group.kind}
		}
	}
	if rule, ok := matchRule(err, unavailableRules); ok {
		return rule.status, errorResponse{Error: rule.message, Type: statusType(rule.status)}
	}

	return internalError()
}

func internalError() (int, errorResponse) {
	return http.StatusInternalServerError, errorResponse{
		Error: "internal server error",
		Type:  "internal_error",
	}
}

func matchRule(err error, rules []errorRule) (errorRule, bool) {
	for _, rule := range rules {
		if errors.Is(err, rule.err) {
			return rule, true
		}
	}
	return errorRule{}, false
}

func statusType(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	if message, ok := validationMessages[code]; ok {
		return message
	}
	return strings.ReplaceAll(code, "_", " ")
}

// classifyErrorForLog labels the last handler error on the access log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return payload.Type, "internal_error"
	}
	code := err.Error()
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		code = vErr.Errors[0].Code
	}
	return payload.Type, code
}
