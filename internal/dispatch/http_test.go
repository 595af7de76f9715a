package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPDispatcherRoundTrip(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/dispatch" {
			t.Errorf("path got %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sekrit" {
			t.Errorf("authorization got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Reply{Text: "thanks, noted"})
	}))
	defer srv.Close()

	d, err := NewHTTPDispatcher(nil, srv.URL, "sekrit", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher: %v", err)
	}
	reply, err := d.Dispatch(context.Background(), Request{
		AccountID: "sales-inbox",
		Channel:   "gmail",
		Sender:    "alice@corp.com",
		Text:      "what is the renewal date?",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Text != "thanks, noted" {
		t.Fatalf("reply got %q", reply.Text)
	}
	if got.AccountID != "sales-inbox" || got.Sender != "alice@corp.com" {
		t.Fatalf("request not forwarded: %+v", got)
	}
}

func TestHTTPDispatcherServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d, err := NewHTTPDispatcher(nil, srv.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), Request{Text: "hi"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestNewHTTPDispatcherValidation(t *testing.T) {
	if _, err := NewHTTPDispatcher(nil, "  ", "", 0); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
