// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/hamed0406/uptimemonitor/internal/config"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	// store
	switch {
	case cfg.DatabaseURL != "":
		if u, err := url.Parse(cfg.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			fail("DATABASE_URL must be a postgres:// URL")
		} else {
			ok("DATABASE_URL present (postgres)")
		}
	case cfg.SQLitePath != "":
		ok("SQLITE_PATH=" + cfg.SQLitePath)
	default:
		warn("DATABASE_URL and SQLITE_PATH empty; history is kept in memory and lost on restart.")
	}

	// monitors
	if cfg.MonitorsFile != "" {
		ms, err := config.LoadMonitors(cfg.MonitorsFile)
		if err != nil {
			fail("MONITORS_FILE: " + err.Error())
		} else {
			ok(fmt.Sprintf("MONITORS_FILE has %d monitors", len(ms)))
		}
	} else {
		warn("MONITORS_FILE empty; only monitors already in the store will run.")
	}

	// alerts
	if cfg.EmailUser == "" || cfg.EmailPass == "" {
		warn("ALERT_EMAIL_USER or ALERT_EMAIL_PASS empty; email alerts are disabled.")
	} else {
		ok(fmt.Sprintf("SMTP %s:%d as %s", cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom))
	}
	if cfg.WebhookURL == "" {
		warn("WEBHOOK_URL empty; webhook alerts are disabled.")
	} else if u, err := url.Parse(cfg.WebhookURL); err != nil || u.Scheme != "https" {
		fail("WEBHOOK_URL must be an https URL")
	} else {
		ok("webhook alerts via " + cfg.WebhookFormat)
	}

	// ops API
	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS empty; job control routes are open.")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS empty; GET /api/jobs is open.")
	}
	for name, v := range map[string]string{
		"ADMIN_API_KEYS":  os.Getenv("ADMIN_API_KEYS"),
		"PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS"),
	} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; cross-origin browser requests will be blocked.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	ok("ADDR=" + cfg.Addr)

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
