package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"scorpius-gateway/internal/platform/config"
)

type failureCounter struct {
	reasons map[string]int
}

func (f *failureCounter) RecordAuthFailure(reason string) {
	if f.reasons == nil {
		f.reasons = make(map[string]int)
	}
	f.reasons[reason]++
}

type AuthenticatorSuite struct {
	suite.Suite
	auth     *Authenticator
	failures *failureCounter
}

func TestAuthenticatorSuite(t *testing.T) {
	suite.Run(t, new(AuthenticatorSuite))
}

func (s *AuthenticatorSuite) SetupTest() {
	s.failures = &failureCounter{}
	s.auth = New(config.JWT{
		Secret:   "test-secret",
		TTL:      time.Hour,
		Issuer:   "scorpius-gateway",
		Audience: "scorpius",
	}, nil, s.failures)
}

func (s *AuthenticatorSuite) TestIdentifyValidToken() {
	token, err := s.auth.Issue("user-42", []string{"read", "scan"}, []string{"analyst"})
	s.Require().NoError(err)

	identity := s.auth.Identify(token)
	s.Require().NotNil(identity)
	s.Equal("user-42", identity.Subject)
	s.Equal([]string{"read", "scan"}, identity.Scopes)
	s.Equal([]string{"analyst"}, identity.Roles)
	s.Empty(s.failures.reasons)
}

func (s *AuthenticatorSuite) TestIdentifyEmptyTokenIsAnonymous() {
	s.Nil(s.auth.Identify(""))
	s.Empty(s.failures.reasons, "anonymous requests are not credential failures")
}

func (s *AuthenticatorSuite) TestIdentifyWrongSecret() {
	other := New(config.JWT{Secret: "other-secret", TTL: time.Hour, Issuer: "scorpius-gateway", Audience: "scorpius"}, nil, nil)
	token, err := other.Issue("user-42", nil, nil)
	s.Require().NoError(err)

	s.Nil(s.auth.Identify(token))
	s.Equal(1, s.failures.reasons[ReasonSignature])
}

func (s *AuthenticatorSuite) TestIdentifyExpiredToken() {
	expired := New(config.JWT{Secret: "test-secret", TTL: -time.Minute, Issuer: "scorpius-gateway", Audience: "scorpius"}, nil, nil)
	token, err := expired.Issue("user-42", nil, nil)
	s.Require().NoError(err)

	s.Nil(s.auth.Identify(token))
	s.Equal(1, s.failures.reasons[ReasonExpired])
}

func (s *AuthenticatorSuite) TestIdentifyGarbageToken() {
	s.Nil(s.auth.Identify("not.a.jwt"))
	s.Nil(s.auth.Identify("complete garbage"))
	s.Equal(2, s.failures.reasons[ReasonMalformed])
}

func (s *AuthenticatorSuite) TestIdentifyMissingSubject() {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "scorpius-gateway",
			Audience:  jwt.ClaimStrings{"scorpius"},
		},
	})
	signed, err := token.SignedString([]byte("test-secret"))
	s.Require().NoError(err)

	s.Nil(s.auth.Identify(signed))
	s.Equal(1, s.failures.reasons[ReasonMissingSubject])
}

func (s *AuthenticatorSuite) TestIdentifyRejectsNonHMACAlgorithm() {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	s.Nil(s.auth.Identify(signed))
	s.Equal(1, s.failures.reasons[ReasonMalformed])
}

func (s *AuthenticatorSuite) TestIdentifyRejectsForeignIssuer() {
	foreign := New(config.JWT{Secret: "test-secret", TTL: time.Hour, Issuer: "other-gateway", Audience: "scorpius"}, nil, nil)
	token, err := foreign.Issue("user-42", nil, nil)
	s.Require().NoError(err)

	s.Nil(s.auth.Identify(token), "a token minted for another issuer must not authenticate")
	s.Equal(1, s.failures.reasons[ReasonMalformed])
}

func (s *AuthenticatorSuite) TestIdentifyRejectsForeignAudience() {
	foreign := New(config.JWT{Secret: "test-secret", TTL: time.Hour, Issuer: "scorpius-gateway", Audience: "other-platform"}, nil, nil)
	token, err := foreign.Issue("user-42", nil, nil)
	s.Require().NoError(err)

	s.Nil(s.auth.Identify(token))
	s.Equal(1, s.failures.reasons[ReasonMalformed])
}

// Authentication succeeds regardless of scope content; scope enforcement is
// not this layer's job.
func (s *AuthenticatorSuite) TestScopesDoNotGateAuthentication() {
	token, err := s.auth.Issue("user-42", []string{"read"}, nil)
	s.Require().NoError(err)

	identity := s.auth.Identify(token)
	s.Require().NotNil(identity)
	s.Equal([]string{"read"}, identity.Scopes)
}
