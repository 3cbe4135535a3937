package explorer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int) {
	t.Helper()
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewClient("test-key", 0, "polygon")
	client.SetBaseURL(server.URL)
	return client, &requests
}

func TestFirstTransactionTimestamp(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("module") != "account" || q.Get("action") != "txlist" || q.Get("sort") != "asc" {
			t.Errorf("Unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"timeStamp":"1700000000"}]}`)
	})

	ts, found, err := client.FirstTransactionTimestamp(context.Background(), "0xAbC")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !found || ts != 1700000000 {
		t.Errorf("Expected (1700000000, true), got (%d, %v)", ts, found)
	}

	// Second call is served from the memo, case-insensitively
	if _, _, err := client.FirstTransactionTimestamp(context.Background(), "0xabc"); err != nil {
		t.Fatalf("memoized lookup failed: %v", err)
	}
	if *requests != 1 {
		t.Errorf("Expected 1 upstream request, got %d", *requests)
	}
}

func TestNoTransactionsFoundIsAbsentAndCached(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	})

	_, found, err := client.FirstTransactionTimestamp(context.Background(), "0xEmpty")
	if err != nil {
		t.Fatalf("Expected no error for empty wallet, got %v", err)
	}
	if found {
		t.Error("Expected found=false for empty wallet")
	}

	// Known-empty wallets are not re-queried
	if _, _, err := client.FirstTransactionTimestamp(context.Background(), "0xempty"); err != nil {
		t.Fatalf("cached empty lookup failed: %v", err)
	}
	if *requests != 1 {
		t.Errorf("Expected 1 upstream request for empty wallet, got %d", *requests)
	}
}

func TestNonSuccessAPIStatusIsAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":[]}`)
	})

	if _, _, err := client.FirstTransactionTimestamp(context.Background(), "0x1"); err == nil {
		t.Error("Expected error for NOTOK response")
	}
}

func TestHTTPErrorIsAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, _, err := client.FirstTransactionTimestamp(context.Background(), "0x1"); err == nil {
		t.Error("Expected error for non-200 response")
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	fail := true
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"timeStamp":"1600000000"}]}`)
	})

	if _, _, err := client.FirstTransactionTimestamp(context.Background(), "0x2"); err == nil {
		t.Fatal("Expected first lookup to fail")
	}

	fail = false
	ts, found, err := client.FirstTransactionTimestamp(context.Background(), "0x2")
	if err != nil || !found || ts != 1600000000 {
		t.Errorf("Expected retry after failure to succeed, got (%d, %v, %v)", ts, found, err)
	}
	if *requests != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", *requests)
	}
}

func TestRequestsAreSpacedByMinDelay(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":[{"timeStamp":"%d"}]}`, requests)
	}))
	defer server.Close()

	client := NewClient("test-key", 50*time.Millisecond, "polygon")
	client.SetBaseURL(server.URL)

	start := time.Now()
	if _, _, err := client.FirstTransactionTimestamp(context.Background(), "0xaa"); err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}
	if _, _, err := client.FirstTransactionTimestamp(context.Background(), "0xbb"); err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected at least 50ms between requests, took %v total", elapsed)
	}
}
