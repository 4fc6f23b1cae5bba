package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCheck_TargetAndTimeout(t *testing.T) {
	c := Check{Protocol: ProtocolHTTPS, URL: "example.com/health", Method: MethodGet, TimeoutSeconds: 3}
	if got := c.Target(); got != "https://example.com/health" {
		t.Fatalf("target=%q", got)
	}
	if c.Timeout() != 3*time.Second {
		t.Fatalf("timeout=%v", c.Timeout())
	}
	if c.HTTPMethod() != "GET" {
		t.Fatalf("method=%q", c.HTTPMethod())
	}
}

func TestCheck_Accepts(t *testing.T) {
	c := Check{SuccessCodes: []int{200, 201}}
	if !c.Accepts(201) || c.Accepts(500) {
		t.Fatalf("accepts mismatch for %v", c.SuccessCodes)
	}
}

func TestCheck_LastCheckedOmittedBeforeFirstRun(t *testing.T) {
	b, err := json.Marshal(Check{ID: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["lastChecked"]; ok {
		t.Fatalf("lastChecked should be omitted: %s", b)
	}
}

func TestOutcome_ExactlyOneSide(t *testing.T) {
	r := ResponseOutcome(200)
	if r.Error != nil || r.ResponseCode == nil || *r.ResponseCode != 200 {
		t.Fatalf("response outcome: %+v", r)
	}
	e := ErrorOutcome(ErrorTimeout, "deadline")
	if e.ResponseCode != nil || e.Error == nil || e.Error.Kind != ErrorTimeout || !e.Error.Error {
		t.Fatalf("error outcome: %+v", e)
	}
}

func TestToken_Valid(t *testing.T) {
	tok := Token{ID: "t1", Phone: "5511999999999", Expires: 2000}
	if !tok.Valid(1999) {
		t.Fatalf("token should be valid before expiry")
	}
	if tok.Valid(2000) || (Token{Expires: 5000}).Valid(1) {
		t.Fatalf("expired or id-less token must be invalid")
	}
}
