package tile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetch_AlwaysFailing_MakesExactlyMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewFetcher()
	data, err := f.Fetch(context.Background(), server.URL+"/14/1/2.png")

	if got := hits.Load(); got != DefaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultMaxAttempts, got)
	}
	if len(data) != 0 {
		t.Errorf("expected empty data on exhaustion, got %d bytes", len(data))
	}
	if !errors.Is(err, ErrTileFetchExhausted) {
		t.Fatalf("expected ErrTileFetchExhausted, got %v", err)
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Attempts != DefaultMaxAttempts || fe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unexpected FetchError: %+v", fe)
	}
}

func TestFetch_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := NewFetcher(WithMaxAttempts(3), WithTimeout(time.Second))
	data, err := f.Fetch(context.Background(), url+"/1/0/0.png")
	if len(data) != 0 || !errors.Is(err, ErrTileFetchExhausted) {
		t.Fatalf("expected exhaustion, got %d bytes, err %v", len(data), err)
	}
}

func TestFetch_SucceedsAfterFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		w.Write([]byte("tile"))
	}))
	defer server.Close()

	f := NewFetcher(WithUserAgent("test-agent"), WithBackoff(time.Millisecond))
	data, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "tile" {
		t.Errorf("unexpected data %q", data)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetch_UndecodableBodyIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("<html>not a tile</html>"))
	}))
	defer server.Close()

	data, err := NewFetcher().Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", hits.Load())
	}
	if _, err := Decode(data); !errors.Is(err, ErrTileDecode) {
		t.Errorf("expected ErrTileDecode, got %v", err)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher().Fetch(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
