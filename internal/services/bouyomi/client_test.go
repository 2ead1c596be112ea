package bouyomi_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"threadrelay/internal/services"
	"threadrelay/internal/services/bouyomi"
)

func splitHostPort(t *testing.T, raw string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func TestSpeakSendsEncodedText(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Talk" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		received <- r.URL.Query().Get("text")
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.Listener.Addr().String())
	client := bouyomi.NewClient(host, port, srv.Client())
	if err := client.Speak(context.Background(), "こんにちは & hi"); err != nil {
		t.Fatalf("Speak returned error: %v", err)
	}
	if got := <-received; got != "こんにちは & hi" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestSpeakIgnoresStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.Listener.Addr().String())
	if err := bouyomi.NewClient(host, port, srv.Client()).Speak(context.Background(), "x"); err != nil {
		t.Fatalf("expected status to be ignored, got %v", err)
	}
}

func TestSpeakTransportErrorIsRelayFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen unavailable: %v", err)
	}
	host, port := splitHostPort(t, listener.Addr().String())
	listener.Close()

	client := bouyomi.NewClient(host, port, &http.Client{Timeout: time.Second})
	err = client.Speak(context.Background(), "hello")
	if !errors.Is(err, services.ErrRelayFailed) {
		t.Fatalf("expected ErrRelayFailed, got %v", err)
	}
}

func TestSpeakBlankIsNoop(t *testing.T) {
	client := bouyomi.NewClient("127.0.0.1", 1, nil)
	if err := client.Speak(context.Background(), "   "); err != nil {
		t.Fatalf("expected blank text to be skipped, got %v", err)
	}
}

func TestEndpoint(t *testing.T) {
	client := bouyomi.NewClient("", 50080, nil)
	if got := client.Endpoint(); got != "http://localhost:50080/Talk" {
		t.Fatalf("unexpected endpoint %q", got)
	}
}
