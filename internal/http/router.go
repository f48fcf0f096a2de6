package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shipkit/platform/internal/service/apikey"
	"github.com/shipkit/platform/internal/service/auth"
	"github.com/shipkit/platform/internal/service/billing"
	"github.com/shipkit/platform/internal/service/content"
	"github.com/shipkit/platform/internal/service/deploy"
	"github.com/shipkit/platform/internal/service/feedback"
	"github.com/shipkit/platform/internal/service/installer"
	"github.com/shipkit/platform/internal/service/project"
	"github.com/shipkit/platform/internal/service/team"
	"github.com/shipkit/platform/internal/service/waitlist"
	"github.com/shipkit/platform/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	team     team.Service
	project  project.Service
	deploy   *deploy.Service
	apikeys  apikey.Service
	billing  *billing.Service
	install  *installer.Service
	content  *content.Store
	feedback feedback.Service
	waitlist waitlist.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	siteURL  string
	siteName string
	hasBlog  bool

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// Deps bundles router dependencies.
type Deps struct {
	Logger   *slog.Logger
	Auth     auth.Service
	Team     team.Service
	Project  project.Service
	Deploy   *deploy.Service
	APIKeys  apikey.Service
	Billing  *billing.Service
	Install  *installer.Service
	Content  *content.Store
	Feedback feedback.Service
	Waitlist waitlist.Service
	Hub      *ws.Hub
	Limiter  RateLimiter
	DBHealth func(context.Context) error

	SiteURL  string
	SiteName string
	HasBlog  bool
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitMagic     = 5
	rateLimitGuest     = 10
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	rateLimitWebhook   = 240
	rateLimitPublic    = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   deps.Logger,
		auth:     deps.Auth,
		team:     deps.Team,
		project:  deps.Project,
		deploy:   deps.Deploy,
		apikeys:  deps.APIKeys,
		billing:  deps.Billing,
		install:  deps.Install,
		content:  deps.Content,
		feedback: deps.Feedback,
		waitlist: deps.Waitlist,
		hub:      deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  deps.Limiter,
		dbHealth: deps.DBHealth,
		siteURL:  strings.TrimSuffix(deps.SiteURL, "/"),
		siteName: deps.SiteName,
		hasBlog:  deps.HasBlog,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/auth/signup", r.audit("auth_signup", r.withRateLimit("auth_signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("auth_login", r.withRateLimit("auth_login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/magic-link", r.audit("auth_magic_link", r.withRateLimit("auth_magic_link", rateLimitMagic, rateWindowDefault, rateLimitKeyIP, r.handleMagicLinkRequest)))
	r.mux.HandleFunc("/auth/magic", r.audit("auth_magic", r.withRateLimit("auth_magic", rateLimitMagic, rateWindowDefault, rateLimitKeyIP, r.handleMagicLinkRedeem)))
	r.mux.HandleFunc("/auth/guest", r.audit("auth_guest", r.withRateLimit("auth_guest", rateLimitGuest, rateWindowDefault, rateLimitKeyIP, r.handleGuest)))
	r.mux.HandleFunc("/auth/account", r.audit("auth_account", r.handlerAuthRate("auth_account", rateLimitUserWrite, rateWindowDefault, r.handleAccount)))

	r.mux.HandleFunc("/teams", r.audit("teams", r.handlerAuthRate("teams", rateLimitUserWrite, rateWindowDefault, r.handleTeams)))
	r.mux.HandleFunc("/teams/", r.audit("teams_sub", r.handlerAuthRate("teams_sub", rateLimitUserWrite, rateWindowDefault, r.handleTeamSubroutes)))
	r.mux.HandleFunc("/projects", r.audit("projects", r.handlerAuthRate("projects", rateLimitUserWrite, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/projects/validate-name", r.audit("projects_validate", r.handlerAuthRate("projects_validate", rateLimitUserRead, rateWindowDefault, r.handleValidateName)))
	r.mux.HandleFunc("/projects/", r.audit("projects_sub", r.handlerAuthRate("projects_sub", rateLimitUserWrite, rateWindowDefault, r.handleProjectSubroutes)))
	r.mux.HandleFunc("/deployments/", r.audit("deployments", r.handlerAuthRate("deployments", rateLimitUserRead, rateWindowDefault, r.handleDeploymentSubroutes)))
	r.mux.HandleFunc("/ws/deployments", r.audit("ws_deployments", r.handlerAuthRate("ws_deployments", rateLimitWebsocket, rateWindowRealtime, r.handleDeploymentsWS)))

	r.mux.HandleFunc("/apikeys", r.audit("apikeys", r.handlerAuthRate("apikeys", rateLimitUserWrite, rateWindowDefault, r.handleAPIKeys)))
	r.mux.HandleFunc("/apikeys/", r.audit("apikeys_sub", r.handlerAuthRate("apikeys_sub", rateLimitUserWrite, rateWindowDefault, r.handleAPIKeySubroutes)))

	r.mux.HandleFunc("/installer/components", r.audit("installer_components", r.handlerAuthRate("installer_components", rateLimitUserRead, rateWindowDefault, r.handleInstallerComponents)))
	r.mux.HandleFunc("/installer/plan", r.audit("installer_plan", r.handlerAuthRate("installer_plan", rateLimitUserWrite, rateWindowDefault, r.handleInstallerPlan)))
	r.mux.HandleFunc("/installer/apply", r.audit("installer_apply", r.handlerAuthRate("installer_apply", rateLimitUserWrite, rateWindowDefault, r.handleInstallerApply)))

	r.mux.HandleFunc("/webhooks/billing", r.audit("billing_webhook", r.withRateLimit("billing_webhook", rateLimitWebhook, rateWindowDefault, rateLimitKeyIP, r.handleBillingWebhook)))
	r.mux.HandleFunc("/billing/payments", r.audit("billing_payments", r.handlerAuthRate("billing_payments", rateLimitUserRead, rateWindowDefault, r.handleBillingPayments)))

	r.mux.HandleFunc("/rss.xml", r.audit("rss", r.handleRSS))
	r.mux.HandleFunc("/sitemap.xml", r.audit("sitemap", r.handleSitemapIndex))
	r.mux.HandleFunc("/sitemap/", r.audit("sitemap_section", r.handleSitemapSection))
	r.mux.HandleFunc("/blog/posts", r.audit("blog_posts", r.handlePosts))
	r.mux.HandleFunc("/blog/posts/", r.audit("blog_post", r.handlePost))

	r.mux.HandleFunc("/feedback", r.audit("feedback", r.withRateLimit("feedback", rateLimitPublic, rateWindowDefault, rateLimitKeyIP, r.handleFeedback)))
	r.mux.HandleFunc("/feedback/", r.audit("feedback_sub", r.handlerAuthRate("feedback_sub", rateLimitUserWrite, rateWindowDefault, r.handleFeedbackSubroutes)))
	r.mux.HandleFunc("/waitlist", r.audit("waitlist", r.withRateLimit("waitlist", rateLimitPublic, rateWindowDefault, rateLimitKeyIP, r.handleWaitlist)))
	r.mux.HandleFunc("/waitlist/count", r.audit("waitlist_count", r.handleWaitlistCount))
	r.mux.HandleFunc("/waitlist/", r.audit("waitlist_sub", r.handlerAuthRate("waitlist_sub", rateLimitUserWrite, rateWindowDefault, r.handleWaitlistSubroutes)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			switch {
			case info.APIKey:
				actor = "api_key"
			case info.Guest:
				actor = "guest"
			default:
				actor = "user"
			}
			fields = append(fields, "user_id", info.UserID)
			if info.TeamID != "" {
				fields = append(fields, "team_id", info.TeamID)
			}
		} else if strings.HasPrefix(req.URL.Path, "/webhooks/") {
			actor = "webhook"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
