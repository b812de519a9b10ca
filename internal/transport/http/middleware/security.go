package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/cache"
	"adjusterhub/internal/model"
	"adjusterhub/internal/pkg/textutil"
	"adjusterhub/internal/ratelimit"
	"adjusterhub/internal/security"
	"adjusterhub/internal/transport/http/response"
)

const ContextNonceKey = "csp_nonce"

// SecurityRecorder receives security events raised by the pipeline.
type SecurityRecorder interface {
	Record(ctx context.Context, ev model.SecurityEvent)
}

func SecurityHeaders(policy security.HeaderPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce := security.NewNonce()
		c.Set(ContextNonceKey, nonce)
		policy.Apply(c.Writer.Header(), nonce)
		c.Next()
	}
}

type GuardConfig struct {
	BlockDuration       time.Duration
	SuspiciousThreshold int
}

// Guard holds the request screening state shared by the pipeline stages: blocked
// client IPs and per-IP suspicious request strikes.
type Guard struct {
	cfg      GuardConfig
	blocked  *cache.TTLCache[time.Time]
	strikes  *cache.TTLCache[int]
	strikeMu sync.Mutex
	honeypot *security.Honeypot
	headers  security.HeaderValidator
	detector *security.PatternDetector
	limiter  *ratelimit.KeyedLimiter
	recorder SecurityRecorder
}

func NewGuard(
	cfg GuardConfig,
	honeypot *security.Honeypot,
	headers security.HeaderValidator,
	detector *security.PatternDetector,
	limiter *ratelimit.KeyedLimiter,
	recorder SecurityRecorder,
) *Guard {
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 30 * time.Minute
	}
	if cfg.SuspiciousThreshold <= 0 {
		cfg.SuspiciousThreshold = 3
	}
	return &Guard{
		cfg:      cfg,
		blocked:  cache.NewTTLCache[time.Time](cfg.BlockDuration),
		strikes:  cache.NewTTLCache[int](cfg.BlockDuration),
		honeypot: honeypot,
		headers:  headers,
		detector: detector,
		limiter:  limiter,
		recorder: recorder,
	}
}

// Block denies ip for the configured block window.
func (g *Guard) Block(ip string) {
	g.blocked.Set(ip, time.Now().Add(g.cfg.BlockDuration))
}

func (g *Guard) IsBlocked(ip string) bool {
	_, ok := g.blocked.Get(ip)
	return ok
}

// Sweep drops expired blocks and strikes.
func (g *Guard) Sweep() int {
	return g.blocked.Sweep() + g.strikes.Sweep()
}

func (g *Guard) Blocklist() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.IsBlocked(c.ClientIP()) {
			response.Abort(c, http.StatusForbidden, 40300, "Access denied")
			return
		}
		c.Next()
	}
}

func (g *Guard) Honeypot() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.honeypot.Match(c.Request.URL.Path) {
			c.Next()
			return
		}
		ip := c.ClientIP()
		g.Block(ip)
		g.record(c, app.EventHoneypotTriggered, model.SeverityCritical, "blocked for "+g.cfg.BlockDuration.String())
		response.Abort(c, http.StatusNotFound, 40400, "not found")
	}
}

func (g *Guard) ValidateHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := g.headers.Validate(c.Request); v != nil {
			g.record(c, app.EventInvalidHeaders, model.SeverityWarning, v.Reason)
			code := 40000
			if v.Status == http.StatusRequestEntityTooLarge {
				code = 41300
			}
			response.Abort(c, v.Status, code, v.Reason)
			return
		}
		c.Next()
	}
}

// DetectPatterns rejects requests matching the attack catalogue. An IP reaching the
// strike threshold inside the block window is blocked.
func (g *Guard) DetectPatterns() gin.HandlerFunc {
	return func(c *gin.Context) {
		finding, ok := g.detector.Inspect(c.Request.URL.Path, c.Request.URL.RawQuery, c.Request.UserAgent())
		if !ok {
			c.Next()
			return
		}
		g.record(c, app.EventSuspiciousRequest, model.SeverityWarning, finding.Category+":"+finding.Pattern+" in "+finding.Field)

		ip := c.ClientIP()
		g.strikeMu.Lock()
		n, _ := g.strikes.Get(ip)
		n++
		g.strikes.Set(ip, n)
		g.strikeMu.Unlock()
		if n >= g.cfg.SuspiciousThreshold {
			g.Block(ip)
			g.record(c, app.EventIPBlocked, model.SeverityCritical, strconv.Itoa(n)+" suspicious requests")
		}
		response.Abort(c, http.StatusBadRequest, 40000, "Request blocked")
	}
}

func (g *Guard) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := g.limiter.Allow(c.ClientIP())
		if ok {
			c.Next()
			return
		}
		g.record(c, app.EventRequestRateLimited, model.SeverityWarning, "")
		secs := int(wait / time.Second)
		if wait%time.Second != 0 {
			secs++
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		response.Abort(c, http.StatusTooManyRequests, 42900, "Too many requests")
	}
}

func (g *Guard) record(c *gin.Context, eventType, severity, details string) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(c.Request.Context(), model.SecurityEvent{
		Type:      eventType,
		Severity:  severity,
		IPAddress: c.ClientIP(),
		UserAgent: textutil.Truncate(c.Request.UserAgent(), 512),
		Path:      textutil.Truncate(c.Request.URL.RequestURI(), 512),
		Details:   details,
	})
}
