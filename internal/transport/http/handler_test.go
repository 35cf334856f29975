package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"scorpius-gateway/internal/audit"
	"scorpius-gateway/internal/auth"
	"scorpius-gateway/internal/platform/config"
	"scorpius-gateway/internal/platform/logger"
	"scorpius-gateway/internal/platform/metrics"
	"scorpius-gateway/internal/proxy"
	"scorpius-gateway/internal/ratelimit"
	"scorpius-gateway/internal/registry"
)

// recorderSpy captures audit events so tests can assert exactly-once
// recording per request.
type recorderSpy struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorderSpy) Record(event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorderSpy) all() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// stubLimiter returns a fixed verdict.
type stubLimiter struct {
	result *ratelimit.Result
	err    error
}

func (l stubLimiter) Allow(ctx context.Context, key string) (*ratelimit.Result, error) {
	return l.result, l.err
}

func allowAll() stubLimiter {
	return stubLimiter{result: &ratelimit.Result{Allowed: true, Limit: 100, Remaining: 99}}
}

func denyAll(retryAfter int) stubLimiter {
	return stubLimiter{result: &ratelimit.Result{Allowed: false, Limit: 100, RetryAfter: retryAfter}}
}

type HandlerSuite struct {
	suite.Suite

	backend       *httptest.Server
	authenticator *auth.Authenticator
	spy           *recorderSpy
	router        http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path, "user": r.Header.Get(proxy.HeaderUserID)})
	}))

	jwtCfg := config.JWT{Secret: "handler-test-secret", TTL: time.Hour, Issuer: "test", Audience: "test"}
	s.authenticator = auth.New(jwtCfg, logger.New(), nil)
	s.spy = &recorderSpy{}
	s.router = s.buildRouter(allowAll(), 2*time.Second)
}

func (s *HandlerSuite) TearDownTest() {
	s.backend.Close()
}

func (s *HandlerSuite) buildRouter(limiter ratelimit.Limiter, forwardTimeout time.Duration) http.Handler {
	reg := registry.NewFromRoutes([]registry.Route{
		{Name: "scanner", BaseURL: s.backend.URL, HealthPath: "/health"},
		{Name: "auth-service", BaseURL: s.backend.URL, HealthPath: "/health"},
	})
	m := metrics.NewWith(prometheus.NewRegistry())
	handler := NewHandler(
		logger.New(),
		m,
		limiter,
		s.authenticator,
		reg,
		registry.NewChecker(reg, time.Second),
		proxy.New(forwardTimeout),
		s.spy,
		[]string{"auth-service"},
		time.Minute,
	)
	return NewRouter(handler, config.Server{CORSOrigins: []string{"*"}, DevTokens: true}, time.Hour)
}

func (s *HandlerSuite) token(subject string) string {
	token, err := s.authenticator.Issue(subject, []string{"read"}, []string{"analyst"})
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) do(router http.Handler, method, target, token string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("User-Agent", "handler-suite/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) singleEvent() audit.Event {
	events := s.spy.all()
	s.Require().Len(events, 1, "each request must be audited exactly once")
	return events[0]
}

func (s *HandlerSuite) TestProxySuccess() {
	rec := s.do(s.router, http.MethodGet, "/api/scanner/scan?deep=true", s.token("user-42"), "")

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"user":"user-42"`)

	event := s.singleEvent()
	s.Equal(audit.Success(200), event.Outcome)
	s.Equal("user-42", event.Subject)
	s.Equal("scanner", event.Service)
	s.Equal("GET /api/scanner/scan", event.Action)
	s.Equal("192.0.2.1", event.SourceIP)
	s.NotEmpty(event.RequestID)
}

func (s *HandlerSuite) TestRateLimitedWithRetryAfter() {
	router := s.buildRouter(denyAll(60), 2*time.Second)

	rec := s.do(router, http.MethodGet, "/api/scanner/scan", s.token("user-42"), "")

	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("60", rec.Header().Get("Retry-After"))
	s.Contains(rec.Body.String(), "rate_limit_exceeded")

	event := s.singleEvent()
	s.Equal(audit.OutcomeRateLimited, event.Outcome)
	s.Equal(429, event.StatusCode)
}

func (s *HandlerSuite) TestRateLimitCheckedBeforeAuth() {
	router := s.buildRouter(denyAll(60), 2*time.Second)

	// No credential: rejection must still be the rate limit, not a 401.
	rec := s.do(router, http.MethodGet, "/api/scanner/scan", "", "")

	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal(audit.OutcomeRateLimited, s.singleEvent().Outcome)
}

func (s *HandlerSuite) TestUnauthorized() {
	rec := s.do(s.router, http.MethodGet, "/api/scanner/scan", "", "")

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "unauthorized")

	event := s.singleEvent()
	s.Equal(audit.OutcomeUnauthorized, event.Outcome)
	s.Empty(event.Subject)
}

func (s *HandlerSuite) TestPublicServiceSkipsAuth() {
	rec := s.do(s.router, http.MethodPost, "/api/auth-service/login", "", `{"user":"x"}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(audit.Success(200), s.singleEvent().Outcome)
}

func (s *HandlerSuite) TestServiceNotFound() {
	rec := s.do(s.router, http.MethodGet, "/api/no-such-service/thing", s.token("user-42"), "")

	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(rec.Body.String(), "service_not_found")
	s.Equal(audit.OutcomeServiceNotFound, s.singleEvent().Outcome)
}

func (s *HandlerSuite) TestMethodNotAllowed() {
	rec := s.do(s.router, http.MethodTrace, "/api/scanner/scan", s.token("user-42"), "")

	s.Equal(http.StatusMethodNotAllowed, rec.Code)
	s.Contains(rec.Body.String(), "method_not_allowed")
	s.Equal(audit.OutcomeMethodNotAllowed, s.singleEvent().Outcome)
}

func (s *HandlerSuite) TestUpstreamTimeout() {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer slow.Close()
	s.backend.Close()
	s.backend = slow
	router := s.buildRouter(allowAll(), 50*time.Millisecond)

	rec := s.do(router, http.MethodGet, "/api/scanner/scan", s.token("user-42"), "")

	s.Equal(http.StatusGatewayTimeout, rec.Code)
	s.Contains(rec.Body.String(), "upstream_timeout")

	event := s.singleEvent()
	s.Equal(audit.OutcomeTimeout, event.Outcome)
	s.Equal(504, event.StatusCode)
}

func (s *HandlerSuite) TestUpstreamConnectionError() {
	s.backend.Close() // refuse connections from here on

	rec := s.do(s.router, http.MethodGet, "/api/scanner/scan", s.token("user-42"), "")

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), "upstream_unavailable")
	s.Equal(audit.OutcomeConnectionError, s.singleEvent().Outcome)
}

func (s *HandlerSuite) TestMintTokenRoundTrip() {
	rec := s.do(s.router, http.MethodPost, "/auth/token", "", `{"subject":"dev-user","scopes":["read"],"roles":["admin"]}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp tokenResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("Bearer", resp.TokenType)
	s.Equal(3600, resp.ExpiresIn)

	identity := s.authenticator.Identify(resp.AccessToken)
	s.Require().NotNil(identity)
	s.Equal("dev-user", identity.Subject)
	s.Equal([]string{"admin"}, identity.Roles)
}

func (s *HandlerSuite) TestMintTokenRequiresSubject() {
	rec := s.do(s.router, http.MethodPost, "/auth/token", "", `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestHealthEndpoint() {
	// Served under both names: /health for API consumers, /healthz for
	// infrastructure probes.
	for _, path := range []string{"/health", "/healthz"} {
		rec := s.do(s.router, http.MethodGet, path, "", "")
		s.Equal(http.StatusOK, rec.Code, path)

		var report registry.Report
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &report))
		s.Len(report.Services, 2, path)
	}
}

func (s *HandlerSuite) TestRequestIDEchoed() {
	req := httptest.NewRequest(http.MethodGet, "/api/scanner/scan", nil)
	req.Header.Set("Authorization", "Bearer "+s.token("user-42"))
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal("fixed-id", rec.Header().Get("X-Request-ID"))
	s.Equal("fixed-id", s.singleEvent().RequestID)
}

func TestClientIPResolution(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded-for wins", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "198.51.100.2"}, "192.0.2.1:555", "203.0.113.7"},
		{"real-ip next", map[string]string{"X-Real-IP": "198.51.100.2"}, "192.0.2.1:555", "198.51.100.2"},
		{"remote addr fallback", nil, "192.0.2.1:555", "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tc.want {
				t.Fatalf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAllowedHosts(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := AllowedHosts([]string{"gateway.scorpius.io", " Gateway.Scorpius.IO "})(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "gateway.scorpius.io:443"
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("allowed host rejected: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "evil.example"
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown host, got %d", rec.Code)
	}

	open := AllowedHosts(nil)(next)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "anything.example"
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("empty allowlist must accept any host, got %d", rec.Code)
	}
}
