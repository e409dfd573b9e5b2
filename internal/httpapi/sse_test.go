package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

func TestSSEHub_Subscribe_Publish_Unsubscribe(t *testing.T) {
	t.Parallel()
	hub := NewSSEHub()
	ch := hub.Subscribe()
	if hub.Subscribers() != 1 {
		t.Fatalf("Subscribers: %d", hub.Subscribers())
	}
	hub.Publish(models.Event{Type: EventSession, ID: "s1", Status: "active"})
	msg := <-ch
	if !strings.Contains(string(msg), `"type":"session_update"`) || !strings.Contains(string(msg), `"id":"s1"`) {
		t.Errorf("Publish: got %s", msg)
	}
	hub.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Unsubscribe")
	}
	hub.Unsubscribe(ch)
}

func TestSSEHub_slowSubscriberDropped(t *testing.T) {
	t.Parallel()
	hub := NewSSEHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)
	for i := 0; i < cap(ch)+10; i++ {
		hub.Publish(models.Event{Type: EventAgent})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d, want %d", len(ch), cap(ch))
	}
}

func TestSSEHub_Handler(t *testing.T) {
	t.Parallel()
	hub := NewSSEHub()
	handler := hub.Handler()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		handler(rec, req)
		close(done)
	}()
	// Read the body only after the handler returns.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	sc := bufio.NewScanner(rec.Body)
	var found bool
	for sc.Scan() {
		if strings.Contains(sc.Text(), "connected") {
			found = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !found {
		t.Error("expected response to contain \"connected\"")
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type: %s", rec.Header().Get("Content-Type"))
	}
}
