package mintclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPaidQuotesDecodesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "paid" {
			t.Fatalf("expected status=paid query, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]Quote{
			{ID: "q1", Amount: 100, Status: "paid"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	quotes, err := c.PaidQuotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 1 || quotes[0].ID != "q1" {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
}

func TestPaidQuotesErrorsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.PaidQuotes(context.Background()); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestRecordFailureDemotesAfterThreshold(t *testing.T) {
	c := NewClient("http://example.invalid", time.Second)
	if !c.isHealthy() {
		t.Fatal("expected client to start healthy")
	}
	c.recordFailure(3)
	c.recordFailure(3)
	if !c.isHealthy() {
		t.Fatal("expected client to stay healthy before threshold")
	}
	c.recordFailure(3)
	if c.isHealthy() {
		t.Fatal("expected client to be marked unhealthy after 3 failures")
	}
}

func TestRecordSuccessPromotesAfterThreshold(t *testing.T) {
	c := NewClient("http://example.invalid", time.Second)
	c.recordFailure(1)
	if c.isHealthy() {
		t.Fatal("expected client to be unhealthy")
	}
	c.recordSuccess(1, 2)
	if c.isHealthy() {
		t.Fatal("expected client to still be unhealthy before recovery threshold")
	}
	c.recordSuccess(1, 2)
	if !c.isHealthy() {
		t.Fatal("expected client to recover after 2 successes")
	}
}
