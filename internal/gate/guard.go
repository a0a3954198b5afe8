// Package gate implements the request gating pipeline. Every protected
// request passes through an ordered chain of guards; the first guard to deny
// short-circuits the chain and the request never reaches a handler.
package gate

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"billing-backend/internal/activity"
	"billing-backend/internal/audit"
	"billing-backend/internal/auth"
	apperrors "billing-backend/internal/errors"
	"billing-backend/internal/metrics"
	"billing-backend/pkg/utils"
)

// nowFunc is swapped in tests that exercise lifecycle deadlines.
var nowFunc = time.Now

// Identity is the authenticated caller. Guards fill it in progressively:
// the token guard sets everything from the claims, the session guard
// refreshes role and tenant from the user row, and the tenant resolver fixes
// the effective tenant scope.
type Identity struct {
	UserID       uint
	Email        string
	Role         string
	TenantID     uint
	SessionEpoch *uint
}

// Request carries the per-request inputs the guards decide on.
type Request struct {
	Method         string
	Path           string
	TokenString    string
	TenantOverride string
	ClientIP       string
	UserAgent      string
	RequestID      string
}

// Decision is a guard verdict. A denial carries the HTTP status, the
// machine-readable code, and optional extra response fields (maintenance
// banner text, renewal redirect hints).
type Decision struct {
	Allowed bool
	Status  int
	Code    string
	Message string
	Extra   map[string]interface{}
}

// Allow passes the request to the next guard.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny rejects the request with the given status and error.
func Deny(status int, appErr *apperrors.AppError) Decision {
	return Decision{
		Allowed: false,
		Status:  status,
		Code:    appErr.Code,
		Message: appErr.Message,
	}
}

// WithExtra attaches additional response fields to a denial.
func (d Decision) WithExtra(key string, value interface{}) Decision {
	if d.Extra == nil {
		d.Extra = make(map[string]interface{})
	}
	d.Extra[key] = value
	return d
}

// Guard is one stage of the pipeline.
type Guard interface {
	Name() string
	Check(req *Request, id *Identity) Decision
}

// Pipeline evaluates guards in order and stops at the first denial.
type Pipeline struct {
	guards []Guard
	log    *logrus.Logger
}

// NewPipeline builds a pipeline over the given guards. Order is the
// contract: maintenance, token, session, tenant resolution, tenant
// lifecycle, subscription lifecycle.
func NewPipeline(logger *logrus.Logger, guards ...Guard) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{guards: guards, log: logger}
}

// Evaluate runs the chain. It returns the accumulated identity together with
// the final decision; on a denial the identity holds whatever the guards
// that ran before the denial had established.
func (p *Pipeline) Evaluate(req *Request) (*Identity, Decision) {
	id := &Identity{}
	for _, guard := range p.guards {
		decision := guard.Check(req, id)
		if !decision.Allowed {
			p.log.WithFields(logrus.Fields{
				"guard":      guard.Name(),
				"code":       decision.Code,
				"status":     decision.Status,
				"method":     req.Method,
				"path":       req.Path,
				"user_id":    id.UserID,
				"tenant_id":  id.TenantID,
				"client_ip":  req.ClientIP,
				"request_id": req.RequestID,
			}).Info("request denied")
			metrics.GateDecisions.WithLabelValues(guard.Name(), decision.Code).Inc()
			return id, decision
		}
	}
	metrics.GateDecisions.WithLabelValues("pipeline", "allowed").Inc()
	return id, Allow()
}

// Middleware adapts the pipeline to gin. On allow it publishes the identity
// under the context keys handlers read; on deny it writes the error body and
// aborts.
func (p *Pipeline) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &Request{
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			TokenString:    extractToken(c),
			TenantOverride: c.GetHeader("X-Tenant-Id"),
			ClientIP:       utils.GetClientIP(c),
			UserAgent:      c.Request.UserAgent(),
			RequestID:      c.GetString("request_id"),
		}

		id, decision := p.Evaluate(req)
		if !decision.Allowed {
			if decision.Status >= http.StatusInternalServerError || decision.Status == http.StatusForbidden {
				audit.Record(audit.Entry{
					RequestID: req.RequestID,
					UserID:    id.UserID,
					TenantID:  id.TenantID,
					Action:    "request.denied",
					Resource:  req.Method + " " + req.Path,
					Details:   decision.Code,
					IPAddress: req.ClientIP,
					UserAgent: req.UserAgent,
				})
			}
			body := gin.H{
				"error":   decision.Code,
				"message": decision.Message,
			}
			for key, value := range decision.Extra {
				body[key] = value
			}
			c.AbortWithStatusJSON(decision.Status, body)
			return
		}

		c.Set("user_id", id.UserID)
		c.Set("email", id.Email)
		c.Set("role", id.Role)
		c.Set("tenant_id", id.TenantID)
		c.Set("identity", id)

		if id.TenantID != 0 {
			activity.Touch(id.TenantID)
		}

		c.Next()
	}
}

// extractToken reads the bearer token, falling back to the auth cookie for
// browser clients.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(auth.AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// hasPrefix reports whether path falls under any of the given prefixes.
func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// CurrentIdentity returns the identity the pipeline attached to the
// request, or nil outside a gated route.
func CurrentIdentity(c *gin.Context) *Identity {
	if value, exists := c.Get("identity"); exists {
		if id, ok := value.(*Identity); ok {
			return id
		}
	}
	return nil
}
