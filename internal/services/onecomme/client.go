// Package onecomme posts comments to a local OneComme chat overlay.
package onecomme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"threadrelay/internal/config"
	"threadrelay/internal/services"
)

// HTTPDoer describes the HTTP client used by the overlay relay.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Comment is one overlay message.
type Comment struct {
	ID           string
	UserID       string
	ProfileImage string
	Name         string
	Text         string
}

type payload struct {
	Service struct {
		ID string `json:"id"`
	} `json:"service"`
	Comment struct {
		ID           string `json:"id"`
		UserID       string `json:"userId"`
		ProfileImage string `json:"profileImage"`
		Name         string `json:"name"`
		Comment      string `json:"comment"`
	} `json:"comment"`
}

// Client sends overlay comments. It never retries.
type Client struct {
	endpoint  string
	serviceID string
	client    HTTPDoer
}

// NewClient constructs an overlay relay posting to endpoint for serviceID.
func NewClient(endpoint, serviceID string, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		endpoint:  strings.TrimSpace(endpoint),
		serviceID: strings.TrimSpace(serviceID),
		client:    client,
	}
}

// NewConfiguredClient builds a client from the overlay configuration section.
func NewConfiguredClient(cfg config.Overlay) *Client {
	return NewClient(cfg.Endpoint, cfg.ServiceID, &http.Client{Timeout: cfg.Timeout()})
}

// Configured reports whether a service id is set.
func (c *Client) Configured() bool {
	return c != nil && c.serviceID != ""
}

// Send posts a comment. Blank text is a no-op. A missing service id, a
// transport error, or a non-2xx status is a relay failure.
func (c *Client) Send(ctx context.Context, comment Comment) error {
	if !c.Configured() {
		return services.Wrap(services.ErrRelayFailed, "onecomme", "send", "overlay service id not configured", nil)
	}
	if strings.TrimSpace(comment.Text) == "" {
		return nil
	}

	var body payload
	body.Service.ID = c.serviceID
	body.Comment.ID = comment.ID
	body.Comment.UserID = comment.UserID
	body.Comment.ProfileImage = comment.ProfileImage
	body.Comment.Name = comment.Name
	body.Comment.Comment = comment.Text
	data, err := json.Marshal(body)
	if err != nil {
		return services.Wrap(services.ErrRelayFailed, "onecomme", "encode", "encode comment", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return services.Wrap(services.ErrRelayFailed, "onecomme", "build request", "invalid overlay endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrRelayFailed, "onecomme", "send", "overlay unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrRelayFailed, "onecomme", "send",
			fmt.Sprintf("overlay returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))), nil)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

// Ping checks that the overlay endpoint's port accepts TCP connections.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	parsed, err := url.Parse(c.endpoint)
	if err != nil || parsed.Host == "" {
		return services.Wrap(services.ErrRelayFailed, "onecomme", "ping", "invalid overlay endpoint", err)
	}
	host := parsed.Host
	if parsed.Port() == "" {
		port := "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(parsed.Hostname(), port)
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return services.Wrap(services.ErrRelayFailed, "onecomme", "ping", "overlay port closed", err)
	}
	return conn.Close()
}
