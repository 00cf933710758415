package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":{"id":"SENT1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "inst1", "evo-key")
	if err := c.SendText(context.Background(), "5561999990000", "Olá!"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/message/sendText/inst1" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotKey != "evo-key" {
		t.Errorf("unexpected apikey header: %q", gotKey)
	}
	if gotBody["number"] != "5561999990000" || gotBody["text"] != "Olá!" {
		t.Errorf("unexpected body: %v", gotBody)
	}
}

func TestSendText_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "inst1", "wrong")
	if err := c.SendText(context.Background(), "5561999990000", "x"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestFetchMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/getBase64FromMediaMessage/inst1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		msg := body["message"].(map[string]interface{})
		key := msg["key"].(map[string]interface{})
		if key["id"] != "MSG1" {
			t.Errorf("unexpected message id: %v", key["id"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base64":"aGVsbG8=","mimetype":"audio/ogg"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "inst1", "")
	data, mime, err := c.FetchMedia(context.Background(), "MSG1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("unexpected bytes: %q", data)
	}
	if mime != "audio/ogg" {
		t.Errorf("unexpected mimetype: %q", mime)
	}
}

func TestFetchMedia_EmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base64":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "inst1", "")
	if _, _, err := c.FetchMedia(context.Background(), "STALE"); err == nil {
		t.Fatal("expected error for empty media payload")
	}
}

func TestFetchMedia_BadBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base64":"!!!not-base64!!!"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "inst1", "")
	if _, _, err := c.FetchMedia(context.Background(), "MSG1"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestWebhookRateLimiter(t *testing.T) {
	r := NewWebhookRateLimiter(3)
	for i := 0; i < 3; i++ {
		if !r.Allow("sender") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if r.Allow("sender") {
		t.Fatal("4th request within window should be blocked")
	}
	if !r.Allow("other") {
		t.Fatal("different key must have its own budget")
	}
}
