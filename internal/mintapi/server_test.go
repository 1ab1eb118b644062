package mintapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeQuoteSource struct {
	quotes []QuoteRecord
	err    error
}

func (f *fakeQuoteSource) PaidQuotes(ctx context.Context) ([]QuoteRecord, error) {
	return f.quotes, f.err
}

func TestHandleQuotesReturnsPaidQuotes(t *testing.T) {
	source := &fakeQuoteSource{quotes: []QuoteRecord{
		{ID: "q1", Amount: 100, Status: "paid"},
		{ID: "q2", Amount: 250, Status: "paid"},
	}}
	server := NewServer("127.0.0.1:0", source)

	req := httptest.NewRequest(http.MethodGet, "/quotes?status=paid", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []QuoteRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 2 || got[0].ID != "q1" || got[1].ID != "q2" {
		t.Fatalf("unexpected quotes: %+v", got)
	}
}

func TestHandleQuotesEmptyListIsEmptyArrayNotNull(t *testing.T) {
	server := NewServer("127.0.0.1:0", &fakeQuoteSource{quotes: nil})

	req := httptest.NewRequest(http.MethodGet, "/quotes?status=paid", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "[]" {
		t.Fatalf("expected empty JSON array, got %q", w.Body.String())
	}
}

func TestHandleQuotesRejectsUnsupportedStatus(t *testing.T) {
	server := NewServer("127.0.0.1:0", &fakeQuoteSource{})

	req := httptest.NewRequest(http.MethodGet, "/quotes?status=pending", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleQuotesSourceErrorReturns500(t *testing.T) {
	server := NewServer("127.0.0.1:0", &fakeQuoteSource{err: errors.New("boom")})

	req := httptest.NewRequest(http.MethodGet, "/quotes?status=paid", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer("127.0.0.1:0", &fakeQuoteSource{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
