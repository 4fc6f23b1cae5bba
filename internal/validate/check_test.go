package validate

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hamed0406/uptimeworker/internal/domain"
)

func validRaw() map[string]any {
	return map[string]any{
		"id":             strings.Repeat("a", 20),
		"userPhone":      "5511999999999",
		"protocol":       "http",
		"url":            "example.com/health",
		"method":         "get",
		"successCodes":   []any{float64(200)},
		"timeoutSeconds": float64(3),
	}
}

func TestCheck_ValidRecordIsNormalized(t *testing.T) {
	c, errs := Check(validRaw())
	if len(errs) != 0 {
		t.Fatalf("unexpected violations: %v", errs)
	}
	if c.State != domain.StateDown {
		t.Fatalf("state should default to down, got %q", c.State)
	}
	if c.LastChecked != 0 {
		t.Fatalf("lastChecked should be unset, got %d", c.LastChecked)
	}
	if c.TimeoutSeconds != 3 || c.Protocol != domain.ProtocolHTTP || c.SuccessCodes[0] != 200 {
		t.Fatalf("fields not carried: %+v", c)
	}
}

func TestCheck_TimeoutMustBeWholeAndInRange(t *testing.T) {
	for _, v := range []any{float64(0), float64(6), float64(-1), 2.5, "3", nil} {
		raw := validRaw()
		raw["timeoutSeconds"] = v
		if _, errs := Check(raw); len(errs) == 0 {
			t.Fatalf("timeoutSeconds=%v should be rejected", v)
		}
	}
	for _, v := range []float64{1, 5} {
		raw := validRaw()
		raw["timeoutSeconds"] = v
		if _, errs := Check(raw); len(errs) != 0 {
			t.Fatalf("timeoutSeconds=%v should pass: %v", v, errs)
		}
	}
}

func TestCheck_Violations(t *testing.T) {
	cases := map[string]func(map[string]any){
		"short id":        func(r map[string]any) { r["id"] = "abc" },
		"short phone":     func(r map[string]any) { r["userPhone"] = "123" },
		"bad protocol":    func(r map[string]any) { r["protocol"] = "ftp" },
		"empty url":       func(r map[string]any) { r["url"] = "" },
		"bad method":      func(r map[string]any) { r["method"] = "patch" },
		"upper method":    func(r map[string]any) { r["method"] = "GET" },
		"empty codes":     func(r map[string]any) { r["successCodes"] = []any{} },
		"codes not list":  func(r map[string]any) { r["successCodes"] = float64(200) },
		"fractional code": func(r map[string]any) { r["successCodes"] = []any{200.5} },
	}
	for name, mutate := range cases {
		raw := validRaw()
		mutate(raw)
		if _, errs := Check(raw); len(errs) != 1 {
			t.Fatalf("%s: want exactly one violation, got %v", name, errs)
		}
	}
	if _, errs := Check(nil); len(errs) == 0 {
		t.Fatalf("nil record should be rejected")
	}
}

func TestCheck_KeepsKnownStateAndPositiveLastChecked(t *testing.T) {
	raw := validRaw()
	raw["state"] = "up"
	raw["lastChecked"] = float64(1700000000000)
	c, errs := Check(raw)
	if len(errs) != 0 {
		t.Fatalf("violations: %v", errs)
	}
	if c.State != domain.StateUp || c.LastChecked != 1700000000000 {
		t.Fatalf("normalization lost fields: %+v", c)
	}

	raw["state"] = "sideways"
	raw["lastChecked"] = ""
	c, _ = Check(raw)
	if c.State != domain.StateDown || c.LastChecked != 0 {
		t.Fatalf("invalid state/lastChecked not reset: %+v", c)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	raw := validRaw()
	raw["lastChecked"] = float64(-5)
	first, errs := Check(raw)
	if len(errs) != 0 {
		t.Fatalf("violations: %v", errs)
	}
	again, err := ToRaw(first)
	if err != nil {
		t.Fatalf("ToRaw: %v", err)
	}
	second, errs := Check(again)
	if len(errs) != 0 {
		t.Fatalf("second pass violations: %v", errs)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("not idempotent:\nfirst =%+v\nsecond=%+v", first, second)
	}
}

func TestDecode(t *testing.T) {
	if _, err := Decode([]byte(`{bad`)); err == nil {
		t.Fatalf("want decode error")
	}
	if _, err := Decode([]byte(`null`)); err == nil {
		t.Fatalf("null document should be rejected")
	}
	raw, err := Decode([]byte(`{"timeoutSeconds":3,"successCodes":[200,201]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if raw["timeoutSeconds"].(float64) != 3 {
		t.Fatalf("numbers should decode as float64: %#v", raw)
	}
}
