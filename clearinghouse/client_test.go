package clearinghouse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(baseURL string) *Client {
	return &Client{
		baseURL:        baseURL,
		bearerToken:    "test-token",
		http:           &http.Client{Timeout: 5 * time.Second},
		maxAttempts:    3,
		initialBackoff: time.Millisecond,
	}
}

func TestAcknowledgeRemittance_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reference_id":"CH-123","status":"accepted"}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).AcknowledgeRemittance(context.Background(), SubmissionRequest{
		FileName:    "era_0830.835",
		CheckNumber: "CHK100",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ReferenceId != "CH-123" || result.Status != "accepted" {
		t.Fatalf("result = %+v", result)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestAcknowledgeRemittance_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"reference_id":"CH-7","status":"accepted"}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).AcknowledgeRemittance(context.Background(), SubmissionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if result.ReferenceId != "CH-7" {
		t.Fatalf("result = %+v", result)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestAcknowledgeRemittance_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).AcknowledgeRemittance(context.Background(), SubmissionRequest{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestAcknowledgeRemittance_NoRetryOnAuthFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).AcknowledgeRemittance(context.Background(), SubmissionRequest{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", n)
	}
}
