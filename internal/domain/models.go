package domain

import (
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

type Method string

const (
	MethodGet    Method = "get"
	MethodPost   Method = "post"
	MethodPut    Method = "put"
	MethodDelete Method = "delete"
)

type State string

const (
	StateUp   State = "up"
	StateDown State = "down"
)

// Collections known to the record store.
const (
	CollectionChecks = "checks"
	CollectionUsers  = "users"
	CollectionTokens = "tokens"
)

// Check is one monitored endpoint. LastChecked is epoch milliseconds; zero
// means the check has never been evaluated.
type Check struct {
	ID             string   `json:"id"`
	UserPhone      string   `json:"userPhone"`
	Protocol       Protocol `json:"protocol"`
	URL            string   `json:"url"`
	Method         Method   `json:"method"`
	SuccessCodes   []int    `json:"successCodes"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
	State          State    `json:"state,omitempty"`
	LastChecked    int64    `json:"lastChecked,omitempty"`
}

// Target is the probe address, e.g. "https://example.com/health".
func (c Check) Target() string {
	return string(c.Protocol) + "://" + c.URL
}

func (c Check) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * 1000 * time.Millisecond
}

// HTTPMethod is the upper-cased verb used on the wire.
func (c Check) HTTPMethod() string {
	return strings.ToUpper(string(c.Method))
}

// Evaluated reports whether the check has completed at least one evaluation.
func (c Check) Evaluated() bool {
	return c.LastChecked > 0
}

// Accepts reports whether code is one of the check's success codes.
func (c Check) Accepts(code int) bool {
	for _, sc := range c.SuccessCodes {
		if sc == code {
			return true
		}
	}
	return false
}

type ErrorKind string

const (
	ErrorTransport ErrorKind = "transport"
	ErrorTimeout   ErrorKind = "timeout"
)

// OutcomeError describes why a probe produced no response.
type OutcomeError struct {
	Error bool      `json:"error"`
	Kind  ErrorKind `json:"kind"`
	Value string    `json:"value"`
	DNS   string    `json:"dns,omitempty"`
}

// Outcome is the transient result of one probe attempt. Exactly one of Error
// and ResponseCode is set.
type Outcome struct {
	Error        *OutcomeError `json:"error,omitempty"`
	ResponseCode *int          `json:"responseCode,omitempty"`
}

func ResponseOutcome(code int) Outcome {
	return Outcome{ResponseCode: &code}
}

func ErrorOutcome(kind ErrorKind, value string) Outcome {
	return Outcome{Error: &OutcomeError{Error: true, Kind: kind, Value: value}}
}

// LogEntry is appended, one JSON object per line, to the check's log after
// every evaluation. Check holds the record as it was before the update.
type LogEntry struct {
	Check   Check   `json:"check"`
	Outcome Outcome `json:"outcome"`
	State   State   `json:"state"`
	Alert   bool    `json:"alert"`
	Time    int64   `json:"time"`
}

// User owns checks and is keyed by phone. HashedPassword is a bcrypt hash
// and is never returned by the API.
type User struct {
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	Phone          string   `json:"phone"`
	HashedPassword string   `json:"hashedPassword,omitempty"`
	TOSAgreement   bool     `json:"tosAgreement"`
	Checks         []string `json:"checks,omitempty"`
}

// Token is a login session; Expires is epoch milliseconds.
type Token struct {
	ID      string `json:"id"`
	Phone   string `json:"phone"`
	Expires int64  `json:"expires"`
}

func (t Token) Valid(nowMillis int64) bool {
	return t.ID != "" && t.Expires > nowMillis
}

func NowMillis() int64 {
	return time.Now().UnixMilli()
}
