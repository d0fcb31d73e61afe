package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	authdomain "github.com/smallbiznis/virtuepath/internal/auth/domain"
	obscontext "github.com/smallbiznis/virtuepath/internal/observability/context"
	"github.com/smallbiznis/virtuepath/internal/observability/logger"
	"github.com/smallbiznis/virtuepath/internal/orgcontext"
	"go.uber.org/zap"
)

// RequiredPermission names the (resource, action) a route needs. When
// ResourceParam is set the path parameter of that name is the resource id;
// Self uses the caller's own id.
type RequiredPermission struct {
	Resource      string
	Action        string
	ResourceParam string
	Self          bool
}

type AccessOptions struct {
	RequireOrganization bool
	RequiredPermission  *RequiredPermission
}

func requirePermission(resource, action string) *RequiredPermission {
	return &RequiredPermission{Resource: resource, Action: action}
}

// guard authenticates the bearer token, loads the caller's organization
// context and enforces opts. Handlers behind it can rely on callerFromContext.
func (s *Server) guard(opts AccessOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, authdomain.ErrMissingToken)
			return
		}
		identity, err := s.tokens.Verify(ctx, raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		principal, err := s.orgContext.LoadPrincipal(ctx, identity.UserID)
		if err != nil {
			logger.FromContext(ctx).Error("organization context lookup failed",
				zap.String("user_id", identity.UserID.String()),
				zap.Error(err),
			)
			AbortWithError(c, ErrContextUnavailable)
			return
		}
		if principal == nil {
			profile, err := s.profiles.Ensure(ctx, identity.UserID, identity.Email)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			principal = &orgcontext.Principal{
				UserID:         profile.ID,
				OrganizationID: profile.OrganizationID,
				Roles:          profile.RoleInfo(),
				IsActive:       profile.IsActive,
			}
		}

		if opts.RequireOrganization && principal.OrganizationID == nil {
			AbortWithError(c, ErrOrganizationRequired)
			return
		}
		if principal.OrganizationID != nil && !principal.IsActive {
			AbortWithError(c, ErrAccountInactive)
			return
		}

		ctx = obscontext.WithActor(ctx, "user", principal.UserID.String())
		if principal.OrganizationID != nil {
			ctx = orgcontext.WithOrgID(ctx, *principal.OrganizationID)
			ctx = obscontext.WithOrgID(ctx, principal.OrganizationID.String())
		}
		c.Request = c.Request.WithContext(ctx)

		if perm := opts.RequiredPermission; perm != nil {
			resourceID := permissionTarget(c, principal.UserID, perm)
			if !s.authz.HasPermission(ctx, principal.UserID, perm.Resource, perm.Action, resourceID) {
				AbortWithError(c, &PermissionDeniedError{Resource: perm.Resource, Action: perm.Action})
				return
			}
		}

		c.Set(contextUserKey, principal)
		c.Set(contextUserIDKey, principal.UserID.String())
		c.Set(contextUserRolesKey, principal.Roles.Roles)
		if principal.OrganizationID != nil {
			c.Set(contextOrganizationIDKey, principal.OrganizationID.String())
		}
		c.Next()
	}
}

func permissionTarget(c *gin.Context, userID uuid.UUID, perm *RequiredPermission) *string {
	switch {
	case perm.Self:
		id := userID.String()
		return &id
	case perm.ResourceParam != "":
		id := c.Param(perm.ResourceParam)
		return &id
	default:
		return nil
	}
}

// callerFromContext returns the principal the guard attached.
func callerFromContext(c *gin.Context) (*orgcontext.Principal, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*orgcontext.Principal)
	return principal, ok && principal != nil
}

// callerOrganization returns the caller's organization id; only valid behind
// a guard with RequireOrganization.
func callerOrganization(c *gin.Context) (uuid.UUID, bool) {
	principal, ok := callerFromContext(c)
	if !ok || principal.OrganizationID == nil {
		return uuid.Nil, false
	}
	return *principal.OrganizationID, true
}
