package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	agentName            = "HisabAgent"
	processReceiptPrefix = "Process this receipt: "
)

// Agent is the client for the remote receipt-processing agent endpoint
type Agent struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewAgent creates a new Agent client. A zero timeout leaves requests unbounded.
func NewAgent(baseURL string, timeout time.Duration) (*Agent, error) {
	return NewAgentWithClient(baseURL, &http.Client{Timeout: timeout}, slog.Default())
}

// NewAgentWithClient creates a new Agent with a custom HTTP client and logger
func NewAgentWithClient(baseURL string, client *http.Client, logger *slog.Logger) (*Agent, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("agent base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing agent base url: %w", err)
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}, nil
}

// processRequest is the body accepted by the agent process endpoint
type processRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (a *Agent) processURL() string {
	return fmt.Sprintf("%s/agents/%s/process", a.baseURL, agentName)
}

func (a *Agent) receiptsURL(userID string) string {
	return fmt.Sprintf("%s/agents/%s/receipts?user_id=%s", a.baseURL, agentName, url.QueryEscape(userID))
}

// Extract submits the encoded image to the agent and validates its answer
func (a *Agent) Extract(ctx context.Context, payload Payload, userID string) (*ProcessReceiptResponse, error) {
	reqBody := processRequest{
		Message: processReceiptPrefix + payload.DataURI(),
		UserID:  userID,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.processURL(), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	raw, status, err := a.do(req, userID)
	if err != nil {
		return nil, fmt.Errorf("calling agent API: %w", err)
	}
	if status/100 != 2 {
		return nil, &APIError{Status: status, Body: string(raw)}
	}

	return decodeReceiptResponse(raw)
}

// History fetches server-side receipts for a user. It never fails; failures
// are reported as HistoryUnavailable.
func (a *Agent) History(ctx context.Context, userID string) History {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.receiptsURL(userID), nil)
	if err != nil {
		return History{Kind: HistoryUnavailable, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	raw, status, err := a.do(req, userID)
	if err != nil {
		return History{Kind: HistoryUnavailable, Err: err}
	}
	if status/100 != 2 {
		return History{Kind: HistoryUnavailable, Err: &APIError{Status: status, Body: string(raw)}}
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return History{Kind: HistoryUnavailable, Err: invalidResponse(err)}
	}

	receipts := make([]*ProcessReceiptResponse, 0, len(docs))
	for _, doc := range docs {
		r, err := decodeReceiptResponse(doc)
		if err != nil {
			return History{Kind: HistoryUnavailable, Err: err}
		}
		receipts = append(receipts, r)
	}

	if len(receipts) == 0 {
		return History{Kind: HistoryEmpty, Receipts: receipts}
	}
	return History{Kind: HistoryFound, Receipts: receipts}
}

// ListForUser returns the server-side receipts for a user, or an empty slice
// when the server has none or cannot be reached. Callers must treat empty as
// "use local data".
func (a *Agent) ListForUser(ctx context.Context, userID string) []*ProcessReceiptResponse {
	h := a.History(ctx, userID)
	if h.Kind != HistoryFound {
		return []*ProcessReceiptResponse{}
	}
	return h.Receipts
}

// do sends the request and returns the raw body and status code
func (a *Agent) do(req *http.Request, userID string) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()
	req.Header.Set("X-Request-ID", reqID)

	a.logger.Info("agent.request",
		"req_id", reqID,
		"method", req.Method,
		"url", req.URL.Path,
		"user_id", userID,
	)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("agent.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			a.logger.Warn("agent.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	a.logger.Info("agent.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, resp.StatusCode, nil
}

// Close is a no-op for the HTTP agent client
func (a *Agent) Close() error {
	return nil
}
