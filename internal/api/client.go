// Package api is the typed REST client for the trading backend. Every call
// carries the session's bearer token and decodes the common
// {status, message, ...payload} envelope.
package api

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"algodesk/internal/config"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/logging"
	"algodesk/internal/session"
)

// Client talks to the backend REST API.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	session      *session.Session
	forwardedFor string
	logger       zerolog.Logger
}

// envelope is the part of every response the client inspects itself.
type envelope struct {
	Status  *bool  `json:"status"`
	Message string `json:"message"`
}

// NewClient creates a client for cfg.BaseURL using sess for authentication.
func NewClient(cfg config.APIConfig, sess *session.Session, logger zerolog.Logger) (*Client, error) {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	forwardedFor := cfg.ForwardedFor
	if forwardedFor == "" {
		forwardedFor = outboundAddr(u)
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 4,
			},
		},
		session:      sess,
		forwardedFor: forwardedFor,
		logger:       logging.WithComponent(logger, "api"),
	}, nil
}

// outboundAddr returns the local address the host of base routes through.
// A UDP dial only consults the routing table, nothing is sent.
func outboundAddr(base *url.URL) string {
	port := base.Port()
	if port == "" {
		port = "80"
		if base.Scheme == "https" {
			port = "443"
		}
	}
	conn, err := net.DialTimeout("udp", net.JoinHostPort(base.Hostname(), port), 2*time.Second)
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *session.Session {
	return c.session
}

// get performs an authenticated GET.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out, true)
}

// send performs an authenticated request with a JSON body.
func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	return c.do(ctx, method, path, nil, body, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, auth bool) (err error) {
	op := method + " " + path
	start := time.Now()
	defer func() {
		logging.LogAPICall(c.logger, method, path, time.Since(start), err)
	}()

	token := c.session.Token()
	if auth && token == "" {
		return apperrors.ErrNotAuthenticated
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("building %s url: %w", op, err)
	}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return apperrors.NewTransportError(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := logging.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("x-forwarded-for", c.forwardedFor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewTransportError(op, err)
	}

	if resp.StatusCode == http.StatusForbidden {
		c.session.HandleUnauthorized(ctx)
		return apperrors.ErrUnauthorized
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 400 {
				return apperrors.NewAPIError(op, resp.StatusCode, "")
			}
			return apperrors.NewTransportError(op, fmt.Errorf("decoding response: %w", err))
		}
	}

	if resp.StatusCode >= 400 || (env.Status != nil && !*env.Status) {
		return apperrors.NewAPIError(op, resp.StatusCode, env.Message)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperrors.NewTransportError(op, fmt.Errorf("decoding %s payload: %w", op, err))
		}
	}
	return nil
}

// pathID escapes an identifier for use as a path segment.
func pathID(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}
