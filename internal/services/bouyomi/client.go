// Package bouyomi relays text to a local Bouyomi-chan speech engine over its
// HTTP /Talk endpoint.
package bouyomi

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"threadrelay/internal/config"
	"threadrelay/internal/services"
)

// HTTPDoer describes the HTTP client used by the speech relay.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends speech requests. It never retries.
type Client struct {
	host   string
	port   int
	client HTTPDoer
}

// NewClient constructs a speech relay for host:port.
func NewClient(host string, port int, client HTTPDoer) *Client {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "localhost"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{host: host, port: port, client: client}
}

// NewConfiguredClient builds a client from the speech configuration section.
func NewConfiguredClient(cfg config.Speech) *Client {
	return NewClient(cfg.Host, cfg.Port, &http.Client{Timeout: cfg.Timeout()})
}

// Endpoint returns the base URL requests are sent to.
func (c *Client) Endpoint() string {
	return "http://" + net.JoinHostPort(c.host, strconv.Itoa(c.port)) + "/Talk"
}

// Speak asks the engine to read text aloud. Blank text is a no-op. Only
// transport errors are failures; the response status is not inspected.
func (c *Client) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	endpoint := c.Endpoint() + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrRelayFailed, "bouyomi", "build request", "invalid speech endpoint", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrRelayFailed, "bouyomi", "talk", fmt.Sprintf("speech engine at %s unreachable", c.host), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

// Ping checks that the engine's port accepts TCP connections.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.host, strconv.Itoa(c.port)))
	if err != nil {
		return services.Wrap(services.ErrRelayFailed, "bouyomi", "ping", "speech engine port closed", err)
	}
	return conn.Close()
}
