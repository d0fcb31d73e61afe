package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/virtuepath/internal/assignment"
	assignmentdomain "github.com/smallbiznis/virtuepath/internal/assignment/domain"
	"github.com/smallbiznis/virtuepath/internal/audit"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/auth"
	authdomain "github.com/smallbiznis/virtuepath/internal/auth/domain"
	"github.com/smallbiznis/virtuepath/internal/authorization"
	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/smallbiznis/virtuepath/internal/journal"
	journaldomain "github.com/smallbiznis/virtuepath/internal/journal/domain"
	"github.com/smallbiznis/virtuepath/internal/observability"
	obsmiddleware "github.com/smallbiznis/virtuepath/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/virtuepath/internal/observability/metrics"
	obstracing "github.com/smallbiznis/virtuepath/internal/observability/tracing"
	"github.com/smallbiznis/virtuepath/internal/organization"
	organizationdomain "github.com/smallbiznis/virtuepath/internal/organization/domain"
	"github.com/smallbiznis/virtuepath/internal/orgcontext"
	"github.com/smallbiznis/virtuepath/internal/outbox"
	"github.com/smallbiznis/virtuepath/internal/payment"
	paymentdomain "github.com/smallbiznis/virtuepath/internal/payment/domain"
	"github.com/smallbiznis/virtuepath/internal/profile"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/providers/email"
	"github.com/smallbiznis/virtuepath/internal/ratelimit"
	"github.com/smallbiznis/virtuepath/internal/sponsor"
	sponsordomain "github.com/smallbiznis/virtuepath/internal/sponsor/domain"
	"github.com/smallbiznis/virtuepath/internal/virtue"
	virtuedomain "github.com/smallbiznis/virtuepath/internal/virtue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	email.Module,
	audit.Module,
	outbox.Module,
	profile.Module,
	orgcontext.Module,
	assignment.Module,
	sponsor.Module,
	authorization.Module,
	auth.Module,
	organization.Module,
	virtue.Module,
	journal.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(httpMetrics.Registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	tokens        authdomain.TokenVerifier
	authSvc       authdomain.Service
	profiles      profiledomain.Service
	orgContext    orgcontext.Loader
	authz         authorization.Service
	organizations organizationdomain.Service
	assignments   assignmentdomain.Service
	sponsors      sponsordomain.Service
	journals      journaldomain.Service
	virtues       virtuedomain.Service
	payments      paymentdomain.Service
	auditSvc      auditdomain.Service
	limiter       *ratelimit.Limiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Tokens        authdomain.TokenVerifier
	AuthSvc       authdomain.Service
	Profiles      profiledomain.Service
	OrgContext    orgcontext.Loader
	Authz         authorization.Service
	Organizations organizationdomain.Service
	Assignments   assignmentdomain.Service
	Sponsors      sponsordomain.Service
	Journals      journaldomain.Service
	Virtues       virtuedomain.Service
	Payments      paymentdomain.Service
	AuditSvc      auditdomain.Service
	Limiter       *ratelimit.Limiter  `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		tokens:        p.Tokens,
		authSvc:       p.AuthSvc,
		profiles:      p.Profiles,
		orgContext:    p.OrgContext,
		authz:         p.Authz,
		organizations: p.Organizations,
		assignments:   p.Assignments,
		sponsors:      p.Sponsors,
		journals:      p.Journals,
		virtues:       p.Virtues,
		payments:      p.Payments,
		auditSvc:      p.AuditSvc,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}

	s.registerAuthRoutes()
	s.registerAccountRoutes()
	s.registerOrganizationRoutes()
	s.registerPractitionerRoutes()
	s.registerSponsorRoutes()
	s.registerPaymentRoutes()
	s.registerAdminRoutes()
	s.registerFallback()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	api := s.engine.Group("/api/auth")

	api.POST("/forgot-password", s.rateLimit(config.RateLimitClassPasswordReset), s.ForgotPassword)
	api.POST("/reset-password/verify", s.rateLimit(config.RateLimitClassPasswordReset), s.VerifyResetToken)
}

func (s *Server) registerAccountRoutes() {
	api := s.engine.Group("/api")

	api.GET("/me", s.guard(AccessOptions{}), s.GetMe)
	api.PATCH("/me", s.guard(AccessOptions{
		RequiredPermission: &RequiredPermission{Resource: authorization.ResourceProfile, Action: authorization.ActionWrite, Self: true},
	}), s.UpdateMe)

	api.GET("/virtues", s.guard(AccessOptions{}), s.ListVirtues)

	// -------- Journal --------
	api.GET("/journal", s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourceJournal, authorization.ActionRead)}), s.ListJournalEntries)
	api.POST("/journal", s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourceJournal, authorization.ActionWrite)}), s.CreateJournalEntry)
	api.PUT("/journal/:entryId", s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourceJournal, authorization.ActionWrite)}), s.UpdateJournalEntry)
	api.DELETE("/journal/:entryId", s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourceJournal, authorization.ActionWrite)}), s.DeleteJournalEntry)
}

func (s *Server) registerOrganizationRoutes() {
	api := s.engine.Group("/api")

	api.POST("/create-organization", s.guard(AccessOptions{}), s.CreateOrganization)
	api.POST("/organizations/signup", s.guard(AccessOptions{}), s.OrganizationSignup)

	current := api.Group("/organizations/current")
	orgGuard := func(resource, action string) gin.HandlerFunc {
		return s.guard(AccessOptions{
			RequireOrganization: true,
			RequiredPermission:  requirePermission(resource, action),
		})
	}

	current.GET("", orgGuard(authorization.ResourceOrganization, authorization.ActionRead), s.GetCurrentOrganization)
	current.GET("/members", orgGuard(authorization.ResourceOrganizationMembers, authorization.ActionRead), s.ListOrganizationMembers)
	current.PUT("/members/:userId/roles", orgGuard(authorization.ResourceOrganizationMembers, authorization.ActionManage), s.SetOrganizationMemberRoles)
	current.POST("/members/:userId/archive", orgGuard(authorization.ResourceOrganizationMembers, authorization.ActionManage), s.ArchiveOrganizationMember)
	current.POST("/members/:userId/reactivate", orgGuard(authorization.ResourceOrganizationMembers, authorization.ActionManage), s.ReactivateOrganizationMember)

	current.POST("/assignments", orgGuard(authorization.ResourceAssignment, authorization.ActionWrite), s.CreateAssignment)
	current.DELETE("/assignments/:assignmentId", orgGuard(authorization.ResourceAssignment, authorization.ActionWrite), s.RemoveAssignment)

	current.GET("/audit-logs", orgGuard(authorization.ResourceAudit, authorization.ActionRead), s.ListOrganizationAuditLogs)
}

func (s *Server) registerPractitionerRoutes() {
	practitioners := s.engine.Group("/api/practitioners/:practitionerId")
	practitionerData := s.guard(AccessOptions{
		RequiredPermission: &RequiredPermission{
			Resource:      authorization.ResourcePractitionerData,
			Action:        authorization.ActionRead,
			ResourceParam: "practitionerId",
		},
	})

	practitioners.GET("/assignments", practitionerData, s.ListPractitionerAssignments)
	practitioners.GET("/journal", practitionerData, s.ListPractitionerJournal)
}

func (s *Server) registerSponsorRoutes() {
	api := s.engine.Group("/api")
	read := s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourceSponsorRelationship, authorization.ActionRead)})
	write := s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourceSponsorRelationship, authorization.ActionWrite)})

	api.GET("/sponsors", read, s.ListSponsorRelationships)
	api.POST("/sponsors/invite", write, s.rateLimit(config.RateLimitClassSponsorInvite), s.InviteSponsor)
	api.POST("/send-sponsor-invite-email", write, s.rateLimit(config.RateLimitClassSponsorInvite), s.ResendSponsorInvite)
	api.POST("/sponsors/:relationshipId/accept", s.guard(AccessOptions{}), s.AcceptSponsorRelationship)
	api.POST("/sponsors/:relationshipId/deactivate", s.guard(AccessOptions{}), s.DeactivateSponsorRelationship)
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")
	read := s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourcePayment, authorization.ActionRead)})
	write := s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourcePayment, authorization.ActionWrite)})

	payments.GET("", read, s.ListPayments)
	payments.GET("/subscriptions", read, s.ListSubscriptions)
	payments.POST("/create-payment-intent", write, s.rateLimit(config.RateLimitClassPaymentIntent), s.CreatePaymentIntent)
	payments.POST("/webhook", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")
	admin.Use(s.guard(AccessOptions{RequiredPermission: requirePermission(authorization.ResourceAdmin, authorization.ActionManage)}))

	admin.POST("/migrate-user", s.MigrateUser)
	admin.POST("/organizations/:organizationId/recount", s.RecountOrganization)
	admin.DELETE("/sponsor-relationships/:relationshipId", s.DeleteSponsorRelationship)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
