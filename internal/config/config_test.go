package config

import (
	"os"
	"testing"
)

func TestLoad_defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c != Default() {
		t.Fatalf("got %+v, want defaults %+v", c, Default())
	}
}

func TestLoad_fileAndEnv(t *testing.T) {
	home := t.TempDir()
	src := `operator: ken@example.com
db:
  driver: postgres
http:
  port: 4000
log:
  format: JSON
notify:
  slack_webhook_url: https://hooks.example.com/x
`
	if err := os.WriteFile(Path(home), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLEXIFY_HTTP_PORT", "5000")
	t.Setenv("DATABASE_URL", "postgres://localhost/plexify")

	c, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Operator != "ken@example.com" || c.DB.Driver != "postgres" || c.Log.Format != "json" {
		t.Fatalf("file values: %+v", c)
	}
	if c.HTTP.Port != 5000 {
		t.Fatalf("env should override file: port %d", c.HTTP.Port)
	}
	if c.DB.URL != "postgres://localhost/plexify" {
		t.Fatalf("DATABASE_URL fallback: %q", c.DB.URL)
	}
	if c.Notify.SlackWebhookURL == "" || !c.OTel.Enabled {
		t.Fatalf("got %+v", c)
	}
}

func TestLoad_badFile(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(Path(home), []byte("http: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(home); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSave_roundTrip(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	home := t.TempDir()
	c := Default()
	c.Operator = "ana"
	c.GRPC.Addr = "127.0.0.1:9000"
	if err := Save(home, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(home)
	if err != nil || got != c {
		t.Fatalf("Load after Save: %+v %v", got, err)
	}
}
