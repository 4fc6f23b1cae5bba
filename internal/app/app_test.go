package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/config"
	"github.com/hamed0406/uptimeworker/internal/domain"
	"github.com/hamed0406/uptimeworker/internal/repo"
)

func testConfig(t *testing.T, driver string) config.Config {
	cfg := config.Defaults("testing")
	dir := t.TempDir()
	cfg.StoreDriver = driver
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.CheckLogDir = filepath.Join(dir, "logs")
	if driver == "sqlite" {
		cfg.DatabaseURL = filepath.Join(dir, "records.db")
	}
	return cfg
}

func TestOpenStore_Drivers(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{"file", "memory", "sqlite"} {
		s, closeFn, err := OpenStore(ctx, testConfig(t, driver), zap.NewNop())
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		if err := s.Create(ctx, domain.CollectionChecks, strings.Repeat("a", 20), []byte(`{}`)); err != nil {
			t.Fatalf("%s create: %v", driver, err)
		}
		if err := closeFn(); err != nil {
			t.Fatalf("%s close: %v", driver, err)
		}
	}
	if _, _, err := OpenStore(ctx, testConfig(t, "etcd"), zap.NewNop()); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestNotifiers(t *testing.T) {
	cfg := config.Defaults("testing")
	if len(Notifiers(cfg)) != 0 {
		t.Fatalf("no credentials means no notifiers")
	}
	cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromPhone = "AC1", "tok", "+15005550006"
	cfg.SlackWebhook = "https://hooks.example/x"
	if len(Notifiers(cfg)) != 2 {
		t.Fatalf("want sms and slack notifiers")
	}
}

func TestNew_WiresWorker(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, "memory"), zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.Worker.CheckInterval != a.Config.CheckInterval || a.Worker.Rotator == nil {
		t.Fatalf("worker not configured from config: %+v", a.Worker)
	}
	if a.Notifier != nil {
		t.Fatalf("notifier should be nil without credentials")
	}

	c := domain.Check{ID: strings.Repeat("z", 20), UserPhone: "5511999999999", Protocol: "ftp",
		URL: "x", Method: "get", SuccessCodes: []int{200}, TimeoutSeconds: 1}
	_ = repo.CreateJSON(ctx, a.Store, domain.CollectionChecks, c.ID, c)
	if n := a.Worker.GatherAll(ctx); n != 1 {
		t.Fatalf("want 1 check dispatched, got %d", n)
	}
	names, _ := a.Logs.List(false)
	if len(names) != 0 {
		t.Fatalf("invalid check must not be logged: %v", names)
	}
	if a.API() == nil {
		t.Fatalf("api server missing")
	}
}
