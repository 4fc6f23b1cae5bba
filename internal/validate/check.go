// Package validate checks the shape of stored check records before they are
// probed and fills the fields a never-evaluated check lacks.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hamed0406/uptimeworker/internal/domain"
)

const (
	MinIDLength    = 20
	MinPhoneLength = 10
	MinTimeout     = 1
	MaxTimeout     = 5
)

var (
	protocols = []string{string(domain.ProtocolHTTPS), string(domain.ProtocolHTTP)}
	methods   = []string{string(domain.MethodGet), string(domain.MethodPost), string(domain.MethodPut), string(domain.MethodDelete)}
)

// Decode parses a stored document into the loosely typed form Check expects.
func Decode(doc []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode check: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode check: not an object")
	}
	return raw, nil
}

// Check validates raw and returns the normalized record, or the list of
// violations when the record cannot be probed. A missing or unknown state
// becomes "down"; a non-positive lastChecked becomes unset.
func Check(raw map[string]any) (domain.Check, []string) {
	if raw == nil {
		return domain.Check{}, []string{"Check is invalid."}
	}
	var (
		c    domain.Check
		errs []string
	)

	if s, ok := stringAtLeast(raw["id"], MinIDLength); ok {
		c.ID = s
	} else {
		errs = append(errs, fmt.Sprintf("Check's id length has to be at least %d", MinIDLength))
	}

	if s, ok := stringAtLeast(raw["userPhone"], MinPhoneLength); ok {
		c.UserPhone = s
	} else {
		errs = append(errs, fmt.Sprintf("Check's user phone length has to be at least %d", MinPhoneLength))
	}

	if s, ok := oneOf(raw["protocol"], protocols); ok {
		c.Protocol = domain.Protocol(s)
	} else {
		errs = append(errs, "Check's protocol is invalid. Acceptable protocols ["+strings.Join(protocols, ", ")+"]")
	}

	if s, ok := stringAtLeast(raw["url"], 1); ok {
		c.URL = s
	} else {
		errs = append(errs, "Check's url is invalid")
	}

	if s, ok := oneOf(raw["method"], methods); ok {
		c.Method = domain.Method(s)
	} else {
		errs = append(errs, "Method is invalid. Acceptable methods ["+strings.Join(methods, ", ")+"]")
	}

	if codes, ok := successCodes(raw["successCodes"]); ok {
		c.SuccessCodes = codes
	} else {
		errs = append(errs, "success codes is invalid")
	}

	switch n, ok := raw["timeoutSeconds"].(float64); {
	case !ok:
		errs = append(errs, "timeout seconds should be a number")
	case n != math.Trunc(n):
		errs = append(errs, "timeout seconds should be an integer")
	case n < MinTimeout || n > MaxTimeout:
		errs = append(errs, fmt.Sprintf("timeout seconds should be between %d and %d", MinTimeout, MaxTimeout))
	default:
		c.TimeoutSeconds = int(n)
	}

	if s, ok := oneOf(raw["state"], []string{string(domain.StateUp), string(domain.StateDown)}); ok {
		c.State = domain.State(s)
	} else {
		c.State = domain.StateDown
	}
	if n, ok := raw["lastChecked"].(float64); ok && n > 0 {
		c.LastChecked = int64(n)
	}

	if len(errs) > 0 {
		return domain.Check{}, errs
	}
	return c, nil
}

// ToRaw converts a typed check back to the stored form.
func ToRaw(c domain.Check) (map[string]any, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

func stringAtLeast(v any, n int) (string, bool) {
	s, ok := v.(string)
	if !ok || len(strings.TrimSpace(s)) < n {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func oneOf(v any, allowed []string) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	for _, a := range allowed {
		if s == a {
			return s, true
		}
	}
	return "", false
}

func successCodes(v any) ([]int, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	out := make([]int, 0, len(list))
	for _, x := range list {
		n, ok := x.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, false
		}
		out = append(out, int(n))
	}
	return out, true
}
