package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch_Mock(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "1\n2\n3\n")

	body, err := Fetch(context.Background(), mock, "http://example.com/api/captures/x/samples.csv", 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "1\n2\n3\n" {
		t.Errorf("got body %q", body)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("got %d requests, want 1", mock.RequestCount())
	}
	if mock.Requests[0].Method != http.MethodGet {
		t.Errorf("method = %s, want GET", mock.Requests[0].Method)
	}
}

func TestFetch_Errors(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusNotFound, `{"error":"capture not found"}`)
	mock.AddErrorResponse(errors.New("connection refused"))
	mock.AddResponse(http.StatusOK, strings.Repeat("9\n", 100))

	_, err := Fetch(context.Background(), mock, "http://example.com/a", 0)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "capture not found") {
		t.Errorf("expected 404 error with body, got %v", err)
	}

	_, err = Fetch(context.Background(), mock, "http://example.com/b", 0)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected transport error, got %v", err)
	}

	_, err = Fetch(context.Background(), mock, "http://example.com/c", 50)
	if err == nil || !strings.Contains(err.Error(), "larger than 50 bytes") {
		t.Errorf("expected size error, got %v", err)
	}

	// Queue exhausted: the mock answers 200 with an empty body.
	body, err := Fetch(context.Background(), mock, "http://example.com/d", 0)
	if err != nil || len(body) != 0 {
		t.Errorf("expected empty success, got %q, %v", body, err)
	}
}

func TestFetch_Server(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0.5\n"))
	}))
	defer srv.Close()

	body, err := Fetch(context.Background(), srv.Client(), srv.URL, 1024)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "0.5\n" {
		t.Errorf("got body %q", body)
	}
}
