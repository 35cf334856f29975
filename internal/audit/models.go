// Package audit records one immutable event per gateway decision. Events fan
// out to a structured log sink (always) and a durable store (best effort);
// recording never blocks or fails the response that triggered it.
package audit

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// Outcome classifies a gateway decision. The set is closed: the fixed values
// below plus SUCCESS_<status> for relayed backend responses.
type Outcome string

const (
	OutcomeRateLimited      Outcome = "RATE_LIMITED"
	OutcomeUnauthorized     Outcome = "UNAUTHORIZED"
	OutcomeServiceNotFound  Outcome = "SERVICE_NOT_FOUND"
	OutcomeMethodNotAllowed Outcome = "METHOD_NOT_ALLOWED"
	OutcomeTimeout          Outcome = "TIMEOUT"
	OutcomeConnectionError  Outcome = "CONNECTION_ERROR"
	OutcomeInternalError    Outcome = "INTERNAL_ERROR"
)

const successPrefix = "SUCCESS_"

// Success returns the outcome for a relayed backend status code.
func Success(status int) Outcome {
	return Outcome(successPrefix + strconv.Itoa(status))
}

// IsValid reports whether o belongs to the closed outcome set.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeRateLimited, OutcomeUnauthorized, OutcomeServiceNotFound,
		OutcomeMethodNotAllowed, OutcomeTimeout, OutcomeConnectionError,
		OutcomeInternalError:
		return true
	}
	rest, ok := strings.CutPrefix(string(o), successPrefix)
	if !ok {
		return false
	}
	status, err := strconv.Atoi(rest)
	return err == nil && status >= 100 && status < 600
}

// Event is the immutable record of one gateway decision. It is created once
// at the end of the request pipeline and never mutated.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Subject    string    `json:"subject,omitempty"` // authenticated subject, empty for anonymous
	Action     string    `json:"action"`            // "<METHOD> <path>"
	Service    string    `json:"service"`
	Outcome    Outcome   `json:"outcome"`
	StatusCode int       `json:"status_code"`
	SourceIP   string    `json:"source_ip"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Browser    string    `json:"browser,omitempty"` // parsed from UserAgent
	RequestID  string    `json:"request_id,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// NewEvent stamps identity and time onto an event and derives the browser
// summary from the raw user agent.
func NewEvent(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Browser == "" && e.UserAgent != "" {
		e.Browser = browserSummary(e.UserAgent)
	}
	return e
}

func browserSummary(raw string) string {
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		return ""
	}
	if version == "" {
		return name
	}
	return name + "/" + version
}
