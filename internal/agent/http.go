package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/moorebrett0/vernacular/internal/fault"
)

// HTTPConfig configures an HTTPAgent.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	AgentID  string
	AliasID  string
	Timeout  time.Duration
}

// HTTPAgent invokes a hosted agent that answers with newline-delimited
// JSON events, each carrying a base64 chunk at chunk.bytes.
type HTTPAgent struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPAgent creates an HTTP agent client. It fails with a
// configuration error when the endpoint or agent identifiers are missing.
func NewHTTPAgent(cfg HTTPConfig) (*HTTPAgent, error) {
	if cfg.Endpoint == "" || cfg.AgentID == "" || cfg.AliasID == "" {
		return nil, fault.Configuration("agent.http", "knowledge agent endpoint, agent id and alias id are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTPAgent{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (a *HTTPAgent) invokeURL(sessionID string) string {
	return fmt.Sprintf("%s/agents/%s/agentAliases/%s/sessions/%s/text",
		strings.TrimRight(a.cfg.Endpoint, "/"),
		url.PathEscape(a.cfg.AgentID),
		url.PathEscape(a.cfg.AliasID),
		url.PathEscape(sessionID))
}

// Invoke posts the query and returns the response as a chunk stream.
// The response body is closed when the stream is drained or abandoned.
func (a *HTTPAgent) Invoke(ctx context.Context, sessionID, query string) (Stream, error) {
	body, err := json.Marshal(map[string]string{"inputText": query})
	if err != nil {
		return nil, fmt.Errorf("marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.invokeURL(sessionID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	if a.cfg.APIKey != "" {
		req.Header.Set("x-api-key", a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fault.Transport("agent.invoke", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fault.Transport("agent.invoke", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	slog.Debug("agent: streaming response", "session", sessionID)
	return ndjsonChunks(resp.Body), nil
}

// ndjsonChunks yields decoded chunk.bytes payloads from each event line.
// Lines without a chunk are skipped.
func ndjsonChunks(body io.ReadCloser) Stream {
	return func(yield func([]byte, error) bool) {
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			if !gjson.ValidBytes(line) {
				yield(nil, fault.Transport("agent.stream", fmt.Errorf("malformed event: %.80s", line)))
				return
			}
			if msg := gjson.GetBytes(line, "error.message"); msg.Exists() {
				yield(nil, fault.Transport("agent.stream", fmt.Errorf("agent error: %s", msg.String())))
				return
			}
			encoded := gjson.GetBytes(line, "chunk.bytes")
			if !encoded.Exists() {
				continue
			}
			chunk, err := base64.StdEncoding.DecodeString(encoded.String())
			if err != nil {
				yield(nil, fault.Transport("agent.stream", fmt.Errorf("decode chunk: %w", err)))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fault.Transport("agent.stream", err))
		}
	}
}
