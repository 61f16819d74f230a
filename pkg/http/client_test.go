package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendAndParseGetWithQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" || r.Header.Get("X-Key") != "k" {
			t.Errorf("unexpected request: %s %v", r.URL, r.Header)
		}
		if r.Header.Get("User-Agent") != defaultUserAgent {
			t.Errorf("user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`{"price":"42.5"}`))
	}))
	defer srv.Close()

	var out struct {
		Price string `json:"price"`
	}
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		Headers:     map[string]string{"X-Key": "k"},
		QueryParams: map[string][]string{"symbol": {"BTCUSDT"}},
	}, &out)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Price != "42.5" {
		t.Fatalf("price %q", out.Price)
	}
}

func TestSendAndParsePostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type %q", r.Header.Get("Content-Type"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["text"] != "hi" {
			t.Errorf("body %v err %v", body, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method: MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"text": "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSendAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("x", maxErrorBody*2)))
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	if !IsStatus(err, http.StatusTooManyRequests) {
		t.Fatalf("expected 429 status error, got %v", err)
	}
	if IsStatus(err, http.StatusForbidden) {
		t.Fatalf("status must not match 403")
	}
	se := err.(*StatusError)
	if len(se.Body) != maxErrorBody {
		t.Fatalf("error body not truncated: %d", len(se.Body))
	}
}
