package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recorder struct {
	name string
	got  []string
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Notify(_ context.Context, msg string) error {
	r.got = append(r.got, msg)
	return r.err
}

func TestRegistry_RegisterGet(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	c := SlackWebhook{WebhookURL: "https://example.com"}
	reg.Register(c)
	if got := reg.Get("slack"); got != c {
		t.Fatalf("Get(slack): got %+v", got)
	}
	if reg.Get("nonexistent") != nil {
		t.Fatal("Get(nonexistent) should be nil")
	}
}

func TestRegistry_NotifyFansOut(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	a := &recorder{name: "a"}
	b := &recorder{name: "b", err: errors.New("down")}
	reg.Register(a)
	reg.Register(b)

	err := reg.Notify(context.Background(), "done")
	if err == nil || !strings.Contains(err.Error(), "b: down") {
		t.Fatalf("Notify: got %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("deliveries: a=%v b=%v", a.got, b.got)
	}

	var nilReg *Registry
	if err := nilReg.Notify(context.Background(), "x"); err != nil {
		t.Fatalf("nil registry: %v", err)
	}
}

func TestSlackWebhook_Notify(t *testing.T) {
	t.Parallel()
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %s", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := SlackWebhook{WebhookURL: srv.URL, Channel: "#eng", Client: srv.Client()}
	if err := c.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if payload["text"] != "hello" || payload["channel"] != "#eng" {
		t.Fatalf("payload: %v", payload)
	}
}

func TestSlackWebhook_Notify_errors(t *testing.T) {
	t.Parallel()
	if err := (SlackWebhook{}).Notify(context.Background(), "msg"); err == nil {
		t.Fatal("expected error when webhook URL empty")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := (SlackWebhook{WebhookURL: srv.URL}).Notify(context.Background(), "msg"); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("non-2xx: got %v", err)
	}
}
