package mintclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestManagerSelectsFirstHealthyUpstream(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	m := NewManager(context.Background(), Config{
		BaseURLs:          []string{bad.URL, good.URL},
		Timeout:           time.Second,
		MaxFailures:       1,
		RecoveryThreshold: 1,
	})
	defer m.Stop()

	m.probeAll()
	m.probeAll()

	active := m.Active()
	if active == nil {
		t.Fatal("expected an active client")
	}
	if active.baseURL != good.URL {
		t.Fatalf("expected active client to be %s, got %s", good.URL, active.baseURL)
	}
}

func TestManagerActiveNilWhenAllDown(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	m := NewManager(context.Background(), Config{
		BaseURLs:          []string{bad.URL},
		Timeout:           time.Second,
		MaxFailures:       1,
		RecoveryThreshold: 1,
	})
	defer m.Stop()

	m.probeAll()
	if m.Active() != nil {
		t.Fatal("expected no active client when every upstream is down")
	}
}

func TestManagerStartStop(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer good.Close()

	m := NewManager(context.Background(), Config{
		BaseURLs: []string{good.URL},
		Timeout:  time.Second,
	})
	m.Start(20 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	if m.Active() == nil {
		t.Fatal("expected active client after health loop ran")
	}
}
