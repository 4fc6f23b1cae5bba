// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/uptimeworker/internal/config"
)

type report struct {
	failed bool
}

func (r *report) fail(msg string) {
	r.failed = true
	fmt.Fprintln(os.Stderr, "✖", msg)
}
func (r *report) warn(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
func (r *report) ok(msg string)   { fmt.Println("✔", msg) }

func main() {
	var r report
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		r.fail("config: " + err.Error())
		os.Exit(1)
	}
	r.ok(fmt.Sprintf("env=%s http=%s https=%s", cfg.EnvName, cfg.HTTPAddr, cfg.HTTPSAddr))
	check(&r, cfg)
	if r.failed {
		os.Exit(1)
	}
	r.ok("preflight passed")
}

func check(r *report, cfg config.Config) {
	if cfg.SMSEnabled() {
		r.ok("SMS gateway credentials present (from " + cfg.Twilio.FromPhone + ")")
		if strings.TrimSpace(cfg.SMSCountryCode) == "" {
			r.fail("SMS_COUNTRY_CODE is empty; alerts would be rejected.")
		}
	} else {
		r.warn("TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN / TWILIO_FROM_PHONE incomplete; SMS alerts are disabled.")
	}
	if cfg.SlackWebhook != "" {
		r.ok("Slack webhook set")
	}

	switch cfg.StoreDriver {
	case "file":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			r.fail("DATA_DIR not writable: " + err.Error())
		} else {
			r.ok("file store at " + cfg.DataDir)
		}
	case "memory":
		r.warn("STORE_DRIVER=memory; checks are lost on restart.")
	default:
		r.ok("store driver " + cfg.StoreDriver + " with DATABASE_URL present")
	}

	if cfg.TLSEnabled() {
		for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
			if _, err := os.Stat(f); err != nil {
				r.fail("TLS file missing: " + f)
			}
		}
	} else {
		r.warn("TLS_CERT_FILE / TLS_KEY_FILE not set; only the HTTP listener will start.")
	}

	if len(cfg.AdminAPIKeys) == 0 {
		r.warn("ADMIN_API_KEYS is empty; write routes are open.")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		r.warn("PUBLIC_API_KEYS is empty; read routes accept admin keys and session tokens only.")
	}
	for _, keys := range [][]string{cfg.AdminAPIKeys, cfg.PublicAPIKeys} {
		for _, k := range keys {
			if strings.Contains(k, " ") {
				r.warn("API key list contains spaces; use comma-separated with no spaces, e.g. key1,key2")
			}
		}
	}
}
