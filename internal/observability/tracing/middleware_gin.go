package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/virtuepath/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "virtuepath/http"

// GinMiddleware opens a server span per request. The span is renamed to the
// matched route once the handler chain has run, and picks up the caller and
// organization the access guard resolved.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		parent := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(parent, c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		span.SetName(c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)...)
		span.SetAttributes(callerAttributes(c)...)

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			span.AddEvent("access.denied", trace.WithAttributes(attribute.Int("http.status_code", status)))
		case status >= http.StatusInternalServerError:
			if last := c.Errors.Last(); last != nil {
				span.RecordError(SafeError(last.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// callerAttributes reads what the request id and access guard middlewares
// stored on the request context.
func callerAttributes(c *gin.Context) []attribute.KeyValue {
	ctx := c.Request.Context()
	var attrs []attribute.KeyValue
	if id := obscontext.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("request_id", id))
	}
	if kind, id := obscontext.ActorFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("actor.type", kind), attribute.String("actor.id", id))
	}
	if orgID := obscontext.OrgIDFromContext(ctx); orgID != "" {
		attrs = append(attrs, attribute.String("organization_id", orgID))
	}
	return attrs
}
