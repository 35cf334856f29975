// Package auth verifies bearer credentials and produces the request Identity.
package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"scorpius-gateway/internal/platform/config"
)

// Rejection reasons exported to the auth_failures metric.
const (
	ReasonMalformed      = "malformed"
	ReasonSignature      = "signature_invalid"
	ReasonExpired        = "expired"
	ReasonMissingSubject = "missing_subject"
)

// Claims carries the gateway's token payload on top of the registered claims.
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// FailureRecorder receives one increment per rejected credential, keyed by
// reason. The metrics package satisfies this.
type FailureRecorder interface {
	RecordAuthFailure(reason string)
}

// Authenticator validates HS256 bearer tokens against the shared secret.
// Identify never returns an error: a bad token yields no identity, counted by
// reason, and the route decides whether anonymous access is acceptable.
type Authenticator struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	logger   *slog.Logger
	failures FailureRecorder
}

// New constructs an Authenticator from the JWT configuration.
func New(cfg config.JWT, logger *slog.Logger, failures FailureRecorder) *Authenticator {
	return &Authenticator{
		secret:   []byte(cfg.Secret),
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		logger:   logger,
		failures: failures,
	}
}

// Identify validates token (signature, expiry, and the configured issuer and
// audience) and extracts the Identity. An empty token means anonymous and
// returns nil without counting a failure.
func (a *Authenticator) Identify(token string) *Identity {
	if token == "" {
		return nil
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		a.reject(reasonFor(err), err)
		return nil
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		a.reject(ReasonMalformed, nil)
		return nil
	}
	if claims.Subject == "" {
		a.reject(ReasonMissingSubject, nil)
		return nil
	}

	return &Identity{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
		Roles:   claims.Roles,
	}
}

// Issue signs a token for subject with the configured TTL. Used by tests and
// the dev-mode mint endpoint; production tokens come from the auth service.
func (a *Authenticator) Issue(subject string, scopes, roles []string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scopes: scopes,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.issuer,
			Audience:  []string{a.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(a.secret)
}

func (a *Authenticator) reject(reason string, err error) {
	if a.failures != nil {
		a.failures.RecordAuthFailure(reason)
	}
	if a.logger != nil {
		a.logger.Debug("bearer credential rejected", "reason", reason, "error", err)
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonSignature
	default:
		return ReasonMalformed
	}
}
