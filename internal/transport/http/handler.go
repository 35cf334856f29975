// Package httpapi exposes the gateway over HTTP: the proxy pipeline, the
// aggregated health endpoint, Prometheus metrics, and the development token
// mint.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"scorpius-gateway/internal/audit"
	"scorpius-gateway/internal/auth"
	"scorpius-gateway/internal/platform/metrics"
	"scorpius-gateway/internal/proxy"
	"scorpius-gateway/internal/ratelimit"
	"scorpius-gateway/internal/registry"
	dErrors "scorpius-gateway/pkg/domain-errors"
	"scorpius-gateway/pkg/platform/httputil"
	"scorpius-gateway/pkg/requestcontext"
)

// AuditRecorder receives one event per terminated request.
type AuditRecorder interface {
	Record(event audit.Event)
}

// Handler carries the wired pipeline stages. Every proxied request passes
// through them in a fixed order: rate limit, authentication, route lookup,
// method gate, forward.
type Handler struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	limiter       ratelimit.Limiter
	authenticator *auth.Authenticator
	registry      *registry.Registry
	checker       *registry.Checker
	forwarder     *proxy.Forwarder
	recorder      AuditRecorder
	public        map[string]struct{}
	window        time.Duration
}

// NewHandler wires the pipeline stages together. publicServices are proxied
// without a bearer credential.
func NewHandler(
	logger *slog.Logger,
	m *metrics.Metrics,
	limiter ratelimit.Limiter,
	authenticator *auth.Authenticator,
	reg *registry.Registry,
	checker *registry.Checker,
	forwarder *proxy.Forwarder,
	recorder AuditRecorder,
	publicServices []string,
	window time.Duration,
) *Handler {
	public := make(map[string]struct{}, len(publicServices))
	for _, name := range publicServices {
		public[name] = struct{}{}
	}
	return &Handler{
		logger:        logger,
		metrics:       m,
		limiter:       limiter,
		authenticator: authenticator,
		registry:      reg,
		checker:       checker,
		forwarder:     forwarder,
		recorder:      recorder,
		public:        public,
		window:        window,
	}
}

// handleProxy runs the full request pipeline for /api/{service}/*. Exactly
// one audit event is recorded per request, whichever branch terminates it.
func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	service := chi.URLParam(r, "service")
	rest := chi.URLParam(r, "*")

	var (
		subject string
		outcome = audit.OutcomeInternalError
		status  = http.StatusInternalServerError
	)
	defer func() {
		h.recorder.Record(audit.Event{
			Subject:    subject,
			Action:     r.Method + " " + r.URL.Path,
			Service:    service,
			Outcome:    outcome,
			StatusCode: status,
			SourceIP:   requestcontext.ClientIP(ctx),
			UserAgent:  requestcontext.UserAgent(ctx),
			RequestID:  requestcontext.RequestID(ctx),
			DurationMs: time.Since(start).Milliseconds(),
		})
		h.metrics.ObserveRequest(r.Method, service, status, time.Since(start))
	}()

	// Admission control comes first so abusive clients cannot probe for
	// credential or routing errors past their quota.
	result, err := h.limiter.Allow(ctx, clientKey(ctx))
	if err != nil {
		// Failover limiters never surface errors; a bare store fails open
		// here rather than rejecting traffic on infrastructure trouble.
		h.logger.Error("rate limit check failed, admitting request", "error", err)
	}
	if result != nil && !result.Allowed {
		outcome, status = audit.OutcomeRateLimited, http.StatusTooManyRequests
		h.metrics.RateLimitHits.Inc()
		retryAfter := result.RetryAfter
		if retryAfter <= 0 {
			retryAfter = int(h.window.Seconds())
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
		return
	}

	identity := h.authenticator.Identify(bearerToken(r))
	if identity != nil {
		subject = identity.Subject
	} else if !h.isPublic(service) {
		outcome, status = audit.OutcomeUnauthorized, http.StatusUnauthorized
		h.metrics.RecordError("unauthorized")
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "valid bearer credential required"))
		return
	}

	route, ok := h.registry.Lookup(service)
	if !ok {
		outcome, status = audit.OutcomeServiceNotFound, http.StatusNotFound
		h.metrics.RecordError("service_not_found")
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown service: "+service))
		return
	}

	if !proxy.MethodAllowed(r.Method) {
		outcome, status = audit.OutcomeMethodNotAllowed, http.StatusMethodNotAllowed
		h.metrics.RecordError("method_not_allowed")
		httputil.WriteError(w, dErrors.New(dErrors.CodeMethodNotAllowed, "method not supported: "+r.Method))
		return
	}

	resp, fwdOutcome := h.forwarder.Forward(ctx, route, r, "/"+rest, identity)
	if resp == nil {
		outcome, status = fwdOutcome, proxy.StatusFor(fwdOutcome)
		h.metrics.RecordError(strings.ToLower(string(fwdOutcome)))
		httputil.WriteError(w, dErrors.New(codeForOutcome(fwdOutcome), "upstream request failed"))
		return
	}

	outcome, status = fwdOutcome, resp.StatusCode
	header := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// handleHealth fans probes out to every backend and reports the aggregate.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.checker.Check(r.Context()))
}

type tokenRequest struct {
	Subject string   `json:"subject"`
	Scopes  []string `json:"scopes"`
	Roles   []string `json:"roles"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleMintToken issues a signed bearer credential. Registered only when
// dev token minting is enabled; production deployments obtain tokens from
// the auth service.
func (h *Handler) handleMintToken(ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject is required"))
			return
		}
		token, err := h.authenticator.Issue(req.Subject, req.Scopes, req.Roles)
		if err != nil {
			h.logger.Error("token mint failed", "error", err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "token mint failed"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, tokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(ttl.Seconds()),
		})
	}
}

func (h *Handler) isPublic(service string) bool {
	_, ok := h.public[service]
	return ok
}

// clientKey derives the limiter bucket for a request. Requests without a
// resolvable source address share one bucket rather than bypassing the
// limiter.
func clientKey(ctx context.Context) string {
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		return ip
	}
	return ratelimit.UnknownClientKey
}

// bearerToken extracts the credential from the Authorization header. Returns
// empty for a missing or non-bearer header.
func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func codeForOutcome(outcome audit.Outcome) dErrors.Code {
	switch outcome {
	case audit.OutcomeTimeout:
		return dErrors.CodeUpstreamTimeout
	case audit.OutcomeConnectionError:
		return dErrors.CodeUpstreamDown
	default:
		return dErrors.CodeInternal
	}
}
