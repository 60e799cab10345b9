package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/divvyhq/divvy/internal/models"
)

// entityPaths maps entity types to their REST collection paths.
var entityPaths = map[models.EntityType]string{
	models.EntityGroup:         "/v1/groups",
	models.EntityExpense:       "/v1/expenses",
	models.EntitySettlement:    "/v1/settlements",
	models.EntityPaymentMethod: "/v1/payment-methods",
}

// Client is the HTTP JSON implementation of API.
type Client struct {
	baseURL string
	session *Session
	http    *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a Client for the given base URL. The session provides
// the bearer token for every request.
func NewClient(baseURL string, session *Session, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		http:    &http.Client{Timeout: timeout},
	}
}

// Create sends a new entity and returns the canonical copy.
func (c *Client) Create(ctx context.Context, entity models.EntityType, opID string, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.path(entity, ""), opID, payload,
		fmt.Sprintf("create %s", entity))
}

// Update replaces an existing entity and returns the canonical copy.
func (c *Client) Update(ctx context.Context, entity models.EntityType, id, opID string, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, c.path(entity, id), opID, payload,
		fmt.Sprintf("update %s", entity))
}

// Delete removes an entity.
func (c *Client) Delete(ctx context.Context, entity models.EntityType, id, opID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.path(entity, id), opID, nil,
		fmt.Sprintf("delete %s", entity))
	return err
}

// Get fetches the current server copy of an entity.
func (c *Client) Get(ctx context.Context, entity models.EntityType, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.path(entity, id), "",
		nil, fmt.Sprintf("get %s", entity))
}

// Pull fetches an entire collection for the session user.
func (c *Client) Pull(ctx context.Context, entity models.EntityType) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.path(entity, ""), "",
		nil, fmt.Sprintf("pull %s", entity))
}

func (c *Client) path(entity models.EntityType, id string) string {
	p, ok := entityPaths[entity]
	if !ok {
		p = "/v1/" + string(entity)
	}
	if id == "" {
		return p
	}
	return p + "/" + id
}

// do performs one request and maps the response onto the error taxonomy.
func (c *Client) do(ctx context.Context, method, path, opID string, payload json.RawMessage, op string) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opID != "" {
		// Operation id doubles as the idempotency key so the server can
		// deduplicate a retried mutation.
		req.Header.Set("Idempotency-Key", opID)
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport-level failure: DNS, refused connection, timeout.
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, c.classify(resp.StatusCode, op, data)
}

// apiError is the error envelope the backend returns on 4xx/5xx.
type apiError struct {
	Message    string            `json:"message"`
	EntityType models.EntityType `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
}

// classify maps an HTTP status onto the error taxonomy.
func (c *Client) classify(status int, op string, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := ae.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return &ConflictError{
			EntityType: ae.EntityType,
			EntityID:   ae.EntityID,
			Gone:       true,
			Reason:     msg,
		}
	case status == http.StatusConflict:
		return &ConflictError{
			EntityType: ae.EntityType,
			EntityID:   ae.EntityID,
			Reason:     msg,
		}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &ValidationError{Reason: msg}
	case status == http.StatusTooManyRequests || status >= 500:
		return &NetworkError{Op: op, Err: fmt.Errorf("server returned %d: %s", status, msg)}
	default:
		// Unexpected client errors (401, 403, ...) are not retryable; a
		// retry would fail identically.
		return &ValidationError{Reason: fmt.Sprintf("server returned %d: %s", status, msg)}
	}
}
