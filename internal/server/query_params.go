package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalUUID(value string) (*uuid.UUID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// uuidParam reads a path parameter and aborts with a validation error when it
// is not a uuid.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || parsed == uuid.Nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return uuid.Nil, false
	}
	return parsed, true
}
