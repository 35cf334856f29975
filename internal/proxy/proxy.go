// Package proxy forwards an admitted, authenticated request to its resolved
// backend and classifies the result into the gateway outcome taxonomy.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scorpius-gateway/internal/audit"
	"scorpius-gateway/internal/auth"
	"scorpius-gateway/internal/registry"
)

// Identity-derived headers injected into the outbound request.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserScopes = "X-User-Scopes"
	HeaderUserRoles  = "X-User-Roles"
)

// hopHeaders are stripped in both directions; they describe the hop, not the
// request.
var hopHeaders = []string{"Host", "Content-Length", "Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade"}

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
	http.MethodPatch:  {},
}

// MethodAllowed reports whether the gateway forwards this HTTP method.
func MethodAllowed(method string) bool {
	_, ok := allowedMethods[method]
	return ok
}

// Response is the relayed backend result. Nil on any forward failure.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// maxRelayBytes bounds how much backend body the gateway buffers.
const maxRelayBytes = 16 << 20

// Forwarder dispatches requests to backends with a fixed timeout. There are
// no retries: the backend is the primary path and its failure is surfaced to
// the caller via the outcome taxonomy.
type Forwarder struct {
	client *http.Client
	tracer trace.Tracer
}

// New builds a Forwarder with the given forward timeout.
func New(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		client: &http.Client{Timeout: timeout},
		tracer: otel.Tracer("scorpius-gateway/proxy"),
	}
}

// Forward sends the inbound request to route.BaseURL+path and returns the
// backend response plus its outcome. On failure the response is nil and the
// outcome identifies the failure class.
func (f *Forwarder) Forward(ctx context.Context, route registry.Route, r *http.Request, path string, identity *auth.Identity) (*Response, audit.Outcome) {
	ctx, span := f.tracer.Start(ctx, "proxy.forward",
		trace.WithAttributes(
			attribute.String("gateway.service", route.Name),
			attribute.String("http.method", r.Method),
		))
	defer span.End()

	outbound, err := f.buildRequest(ctx, route, r, path, identity)
	if err != nil {
		span.RecordError(err)
		return nil, audit.OutcomeInternalError
	}

	resp, err := f.client.Do(outbound)
	if err != nil {
		outcome := classify(err)
		span.RecordError(err)
		span.SetAttributes(attribute.String("gateway.outcome", string(outcome)))
		return nil, outcome
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBytes))
	if err != nil {
		span.RecordError(err)
		return nil, classify(err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     relayHeaders(resp.Header),
		Body:       body,
	}, audit.Success(resp.StatusCode)
}

func (f *Forwarder) buildRequest(ctx context.Context, route registry.Route, r *http.Request, path string, identity *auth.Identity) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := route.BaseURL + path

	var body io.Reader
	if r.Method == http.MethodGet {
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
	} else {
		body = r.Body
	}

	outbound, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, err
	}

	// Identity headers are gateway-owned: whatever the client sent is
	// dropped so a caller can never forge a verified identity downstream.
	outbound.Header = relayHeaders(r.Header)
	outbound.Header.Del(HeaderUserID)
	outbound.Header.Del(HeaderUserScopes)
	outbound.Header.Del(HeaderUserRoles)
	if identity != nil {
		outbound.Header.Set(HeaderUserID, identity.Subject)
		outbound.Header.Set(HeaderUserScopes, strings.Join(identity.Scopes, ","))
		outbound.Header.Set(HeaderUserRoles, strings.Join(identity.Roles, ","))
	}
	return outbound, nil
}

// relayHeaders copies h minus the hop-specific headers.
func relayHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for key, values := range h {
		out[key] = append([]string(nil), values...)
	}
	for _, hop := range hopHeaders {
		out.Del(hop)
	}
	return out
}

// classify maps a transport error to the outcome taxonomy: timeouts to
// TIMEOUT, dial/connection failures to CONNECTION_ERROR, the rest to
// INTERNAL_ERROR.
func classify(err error) audit.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return audit.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return audit.OutcomeTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return audit.OutcomeConnectionError
	}
	return audit.OutcomeInternalError
}

// StatusFor maps a failure outcome to the HTTP status returned to the
// caller.
func StatusFor(outcome audit.Outcome) int {
	switch outcome {
	case audit.OutcomeTimeout:
		return http.StatusGatewayTimeout
	case audit.OutcomeConnectionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
