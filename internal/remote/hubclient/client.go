// Package hubclient talks to the hedgebook hub: plain HTTP for reading and
// replacing the shared document, and a websocket stream of msgpack envelopes
// for pushed changes.
package hubclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/hub"
)

const (
	documentPath = "/api/document"
	streamPath   = "/api/document/stream"

	requestTimeout = 30 * time.Second
	dialTimeout    = 30 * time.Second
	readLimit      = 8 << 20

	baseReconnectDelay = 2 * time.Second
	maxReconnectDelay  = 2 * time.Minute
)

// StatusError is a non-2xx hub response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hub returned %d: %s", e.Status, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests and dialing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithReconnectDelay sets the stream reconnect backoff bounds.
func WithReconnectDelay(base, max time.Duration) Option {
	return func(c *Client) {
		c.reconnectBase = base
		c.reconnectMax = max
	}
}

// Client is a syncer.RemoteStore backed by the hub.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	reconnectBase time.Duration
	reconnectMax  time.Duration
	log           zerolog.Logger
}

// newHTTP1Client forces HTTP/1.1 so the websocket upgrade works behind
// proxies that would otherwise negotiate HTTP/2.
func newHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// New creates a hub client for baseURL (http or https).
func New(baseURL string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    newHTTP1Client(),
		reconnectBase: baseReconnectDelay,
		reconnectMax:  maxReconnectDelay,
		log:           log.With().Str("client", "hub").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the shared document. It returns nil, nil when the hub has none.
func (c *Client) Load(ctx context.Context) (*domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+documentPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shared document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, readLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read shared document: %w", err)
	}
	doc, err := domain.DecodeDocument(body)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save replaces the shared document.
func (c *Client) Save(ctx context.Context, doc domain.Document) error {
	body, err := doc.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+documentPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to write shared document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Debug().Uint64("revision", doc.Revision).Int("bytes", len(body)).Msg("Shared document written")
	return nil
}

func readStatusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{Status: resp.StatusCode, Message: payload.Error}
}

// Subscribe streams pushed documents to fn until cancel is called or ctx
// ends. The connection is re-established with exponential backoff; the hub
// resends its current document on every connect.
func (c *Client) Subscribe(ctx context.Context, fn func(domain.Document)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	go c.run(subCtx, fn)
	return cancel, nil
}

func (c *Client) run(ctx context.Context, fn func(domain.Document)) {
	delay := c.reconnectBase
	for {
		connected, err := c.stream(ctx, fn)
		if ctx.Err() != nil {
			c.log.Debug().Msg("Document stream stopped")
			return
		}
		if connected {
			delay = c.reconnectBase
		}

		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("Document stream lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.reconnectMax {
			delay = c.reconnectMax
		}
	}
}

// stream runs one connection. It reports whether the dial succeeded.
func (c *Client) stream(ctx context.Context, fn func(domain.Document)) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.baseURL+streamPath, &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to dial document stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(readLimit)

	c.log.Info().Str("url", c.baseURL+streamPath).Msg("Connected to document stream")

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return true, fmt.Errorf("hub closed the stream (status %d)", status)
			}
			return true, fmt.Errorf("document stream read failed: %w", err)
		}

		if msgType != websocket.MessageBinary {
			c.log.Debug().Int("type", int(msgType)).Msg("Ignoring non-binary frame")
			continue
		}

		env, err := hub.DecodeEnvelope(data)
		if err != nil {
			c.log.Error().Err(err).Msg("Failed to decode stream frame")
			continue
		}
		if env.Kind != hub.KindSnapshot {
			continue
		}

		doc, err := domain.DecodeDocument(env.Document)
		if err != nil {
			c.log.Error().Err(err).Uint64("revision", env.Revision).Msg("Failed to decode pushed document")
			continue
		}
		fn(doc)
	}
}
