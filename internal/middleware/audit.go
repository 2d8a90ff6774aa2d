package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/service"
)

// AuditCollectorKey is the gin context key of the request's audit collector.
const AuditCollectorKey = "auditCollector"

type auditPersister interface {
	Persist(ctx context.Context, collector *service.AuditCollector, meta service.AuditRequestMeta)
}

// Audit attaches a request-scoped collector to every mutating request and
// writes whatever the services recorded once the handler has finished.
func Audit(persister auditPersister) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		collector := service.NewAuditCollector()
		c.Set(AuditCollectorKey, collector)
		c.Request = c.Request.WithContext(service.WithAuditCollector(c.Request.Context(), collector))

		c.Next()

		meta := service.AuditRequestMeta{
			IPAddress: ClientIP(c.Request),
			UserAgent: c.Request.UserAgent(),
		}
		if claims, ok := Claims(c); ok {
			userID := claims.UserID
			meta.UserID = &userID
		}
		// the client may have gone away; the audit trail must still be written
		persister.Persist(context.WithoutCancel(c.Request.Context()), collector, meta)
	}
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
