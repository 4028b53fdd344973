// Package delivery sends metrics, heartbeats and health snapshots to the
// collector over HTTP.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/worksight/internal/adapters/identity"
	"github.com/okian/worksight/pkg/logger"
)

// Agent identification sent with each session.
const (
	AgentName           = "WorkSight-Agent"
	DefaultAgentVersion = "0.1.0"
)

// Collector routes.
const (
	sessionsPath  = "/api/sessions/"
	heartbeatPath = "/api/heartbeat/"
	metricsPath   = "/api/ai-metrics/"
	healthPath    = "/api/health/"
)

// Request headers.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderEndpointID     = "X-Endpoint-ID"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// Client talks to the collector. Safe for concurrent use.
type Client struct {
	baseURL      string
	endpointID   string
	agentVersion string
	httpClient   *http.Client
	sessionID    atomic.Int64
	logger       logger.Logger
}

// New creates a collector client rooted at baseURL.
func New(baseURL, endpointID string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		endpointID:   endpointID,
		agentVersion: DefaultAgentVersion,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logger.Named("delivery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sessionRequest struct {
	AgentName    string `json:"agent_name"`
	AgentVersion string `json:"agent_version"`
	EndpointID   string `json:"endpoint_id"`
	Hostname     string `json:"hostname"`
	Username     string `json:"username"`
	IPAddress    string `json:"ip_address"`
	OSName       string `json:"os_name"`
	Machine      string `json:"machine"`
}

type sessionResponse struct {
	SessionID int64 `json:"session_id"`
}

// CreateSession registers this agent run and remembers the returned id.
func (c *Client) CreateSession(ctx context.Context, info identity.SystemInfo) (int64, error) {
	req := sessionRequest{
		AgentName:    AgentName,
		AgentVersion: c.agentVersion,
		EndpointID:   c.endpointID,
		Hostname:     info.Hostname,
		Username:     info.Username,
		IPAddress:    info.IPAddress,
		OSName:       info.OSName,
		Machine:      info.Machine,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal session request: %w", err)
	}

	resp, err := c.post(ctx, sessionsPath, body, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	var sr sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, fmt.Errorf("decode session response: %w", err)
	}
	if sr.SessionID <= 0 {
		return 0, ErrNoSession
	}
	c.sessionID.Store(sr.SessionID)
	c.logger.Info(ctx, "session created", logger.Int64("session_id", sr.SessionID))
	return sr.SessionID, nil
}

// SessionID returns the active session id, or 0 before CreateSession succeeds.
func (c *Client) SessionID() int64 { return c.sessionID.Load() }

// SendMetric posts one serialized AIMetric. key is forwarded as the
// idempotency key so the collector can drop replays.
func (c *Client) SendMetric(ctx context.Context, payload []byte, key string) error {
	resp, err := c.post(ctx, metricsPath, payload, map[string]string{HeaderIdempotencyKey: key})
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

type heartbeatRequest struct {
	EndpointID string    `json:"endpoint_id"`
	SessionID  int64     `json:"session_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// SendHeartbeat posts a liveness ping. Without a session it uses the
// session-less route.
func (c *Client) SendHeartbeat(ctx context.Context) error {
	sid := c.SessionID()
	path := heartbeatPath
	if sid > 0 {
		path = sessionsPath + strconv.FormatInt(sid, 10) + "/heartbeat/"
	}
	body, err := json.Marshal(heartbeatRequest{EndpointID: c.endpointID, SessionID: sid, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	resp, err := c.post(ctx, path, body, nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// SendHealth posts a health snapshot.
func (c *Client) SendHealth(ctx context.Context, snapshot any) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal health snapshot: %w", err)
	}
	resp, err := c.post(ctx, healthPath, body, nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// post sends body and returns the response for 2xx; any other status is
// returned as *StatusError with the body already consumed.
func (c *Client) post(ctx context.Context, path string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEndpointID, c.endpointID)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
