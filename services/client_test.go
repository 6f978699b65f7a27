package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestWithQuery(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		params   url.Values
		want     string
	}{
		{"no params", "http://proxy/api/orders", nil, "http://proxy/api/orders"},
		{"adds params", "http://proxy/api/orders", url.Values{"uids": {"1,2"}}, "http://proxy/api/orders?uids=1%2C2"},
		{"merges existing", "http://proxy/api/ai?lang=en", url.Values{"topN": {"5"}}, "http://proxy/api/ai?lang=en&topN=5"},
		{"replaces existing", "http://proxy/api/ai?topN=1", url.Values{"topN": {"5"}}, "http://proxy/api/ai?topN=5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := withQuery(tt.endpoint, tt.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("withQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithQuery_InvalidEndpoint(t *testing.T) {
	if _, err := withQuery("http://bad host/%zz", nil); err == nil {
		t.Error("expected error for an unparseable endpoint")
	}
}

func TestProxyClient_SendsAPIKey(t *testing.T) {
	var gotKey, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := newProxyClient(time.Second, KeyFunc(func() string { return "secret-key" }))
	var out envelope
	if err := client.getJSON(context.Background(), server.URL, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "secret-key" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if !out.Success {
		t.Error("expected decoded body")
	}
}

func TestProxyClient_OmitsEmptyAPIKey(t *testing.T) {
	present := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Api-Key"]
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newProxyClient(time.Second, nil)
	var out envelope
	if err := client.getJSON(context.Background(), server.URL, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if present {
		t.Error("x-api-key must not be sent when no key is set")
	}
}

func TestProxyClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":"invalid api key"}`))
	}))
	defer server.Close()

	client := newProxyClient(time.Second, nil)
	var out envelope
	err := client.getJSON(context.Background(), server.URL, nil, &out)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized || statusErr.Message != "invalid api key" {
		t.Errorf("unexpected status error: %+v", statusErr)
	}
}

func TestProxyClient_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	client := newProxyClient(time.Second, nil)
	var out envelope
	err := client.getJSON(context.Background(), server.URL, nil, &out)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestProxyClient_Transport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := server.URL
	server.Close()

	client := newProxyClient(time.Second, nil)
	var out envelope
	err := client.getJSON(context.Background(), target, nil, &out)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestProxyClient_PostJSON(t *testing.T) {
	var method, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := newProxyClient(time.Second, nil)
	var out envelope
	if err := client.postJSON(context.Background(), server.URL, nil, map[string]string{"a": "b"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodPost || contentType != "application/json" {
		t.Errorf("method = %s, content type = %s", method, contentType)
	}
}
