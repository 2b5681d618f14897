package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"userbot-connect/internal/telemetry/domain"
)

func captureServer(t *testing.T, status int, got *PushRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestPushEventJSON_LabelsFromEvent(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, _ := json.Marshal(&domain.Event{ID: "1", UserID: 9, EventType: domain.EventLoginFailed, Source: "login", CreatedAt: at})

	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != DefaultJob || s.Stream["event_type"] != domain.EventLoginFailed || s.Stream["source"] != "login" {
		t.Errorf("labels = %v", s.Stream)
	}
	if _, ok := s.Stream["user_id"]; ok {
		t.Error("user_id must not be a label")
	}
	if s.Values[0][0] != "1772366400000000000" {
		t.Errorf("timestamp = %q", s.Values[0][0])
	}
}

func TestPushEventJSON_UnparseablePushedRaw(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusOK, &got)
	c, _ := NewClient(srv.URL)
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if got.Streams[0].Values[0][1] != "not json" {
		t.Errorf("line = %q", got.Streams[0].Values[0][1])
	}
	if len(got.Streams[0].Stream) != 1 {
		t.Errorf("labels = %v, want job only", got.Streams[0].Stream)
	}
}

func TestPush_Non2xx(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusBadRequest, &got)
	c, _ := NewClient(srv.URL)
	if err := c.Push(context.Background(), time.Now(), "x", map[string]string{"a": "b c"}); err == nil {
		t.Fatal("expected error on 400")
	}
	if got.Streams[0].Stream["a"] != "b_c" {
		t.Errorf("sanitized label = %q, want %q", got.Streams[0].Stream["a"], "b_c")
	}
}
