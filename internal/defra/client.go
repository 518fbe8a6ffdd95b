// Package defra talks to DefraDB over its HTTP GraphQL API and manages the
// local DefraDB container.
package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnhealthy is returned when the DefraDB health check fails.
	ErrUnhealthy = errors.New("defra health check failed")

	// ErrSinkClosed is returned when writes reach a stopped sink.
	ErrSinkClosed = errors.New("sink closed")

	// ErrNotFound is returned when a queried document does not exist.
	ErrNotFound = errors.New("document not found")
)

const defaultHTTPTimeout = 30 * time.Second

// Client is a DefraDB HTTP/GraphQL client.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the DefraDB node at url.
func NewClient(url string) *Client {
	return &Client{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// URL returns the node's base URL.
func (c *Client) URL() string {
	return c.url
}

// GQLRequest is a GraphQL request body.
type GQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GQLResponse is a GraphQL response body.
type GQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GQLError     `json:"errors,omitempty"`
}

// GQLError is one GraphQL error.
type GQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Error returns the first error message or "".
func (r *GQLResponse) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Docs returns the documents under key in the response data.
func (r *GQLResponse) Docs(key string) []map[string]any {
	raw, ok := r.Data[key].([]any)
	if !ok {
		return nil
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		if doc, ok := d.(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// HealthCheck returns nil when the node answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health-check", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Execute sends a GraphQL request. GraphQL errors are returned in the
// response, not as err.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error) {
	body, err := json.Marshal(GQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("defra server error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if len(respBody) == 0 {
		return nil, fmt.Errorf("defra returned empty response (status %d)", resp.StatusCode)
	}

	var gqlResp GQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(respBody))
	}
	return &gqlResp, nil
}

// AddSchema registers GraphQL SDL with the node.
func (c *Client) AddSchema(ctx context.Context, sdl string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/schema", strings.NewReader(sdl))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("schema error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Create creates one document and returns its ID.
func (c *Client) Create(ctx context.Context, collection string, input map[string]any) (string, error) {
	results, err := c.CreateMany(ctx, collection, []map[string]any{input})
	if err != nil {
		return "", err
	}
	return results[0].DocID, nil
}

// CreateResult is one document created by CreateMany.
type CreateResult struct {
	DocID  string
	Fields map[string]any
}

// CreateMany creates documents in one mutation. DefraDB does not promise
// to answer in input order, so callers that need to match results to inputs
// should request an identifying field through returnFields.
func (c *Client) CreateMany(ctx context.Context, collection string, inputs []map[string]any, returnFields ...string) ([]CreateResult, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	parts := make([]string, 0, len(inputs))
	for _, input := range inputs {
		gql, err := mapToGraphQLInput(input)
		if err != nil {
			return nil, fmt.Errorf("failed to build input: %w", err)
		}
		parts = append(parts, gql)
	}
	fields := append([]string{"_docID"}, returnFields...)
	mutation := fmt.Sprintf(`mutation { create_%s(input: [%s]) { %s } }`,
		collection, strings.Join(parts, ", "), strings.Join(fields, " "))

	resp, err := c.Execute(ctx, mutation, nil)
	if err != nil {
		return nil, err
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("create error: %s", msg)
	}

	docs := resp.Docs("create_" + collection)
	results := make([]CreateResult, 0, len(docs))
	for _, doc := range docs {
		r := CreateResult{Fields: make(map[string]any, len(doc))}
		for k, v := range doc {
			if k == "_docID" {
				r.DocID, _ = v.(string)
				continue
			}
			r.Fields[k] = v
		}
		results = append(results, r)
	}
	if len(results) != len(inputs) {
		return results, fmt.Errorf("created %d docs but expected %d", len(results), len(inputs))
	}
	return results, nil
}

// Update patches one document.
func (c *Client) Update(ctx context.Context, collection, docID string, input map[string]any) error {
	if err := ValidateID(docID); err != nil {
		return err
	}
	gql, err := mapToGraphQLInput(input)
	if err != nil {
		return fmt.Errorf("failed to build input: %w", err)
	}
	mutation := fmt.Sprintf(`mutation { update_%s(docID: %q, input: %s) { _docID } }`, collection, docID, gql)

	resp, err := c.Execute(ctx, mutation, nil)
	if err != nil {
		return err
	}
	if msg := resp.Error(); msg != "" {
		return fmt.Errorf("update error: %s", msg)
	}
	return nil
}

// Delete removes one document.
func (c *Client) Delete(ctx context.Context, collection, docID string) error {
	if err := ValidateID(docID); err != nil {
		return err
	}
	mutation := fmt.Sprintf(`mutation { delete_%s(docID: %q) { _docID } }`, collection, docID)

	resp, err := c.Execute(ctx, mutation, nil)
	if err != nil {
		return err
	}
	if msg := resp.Error(); msg != "" {
		return fmt.Errorf("delete error: %s", msg)
	}
	return nil
}

// mapToGraphQLInput renders a map as a GraphQL input object. Keys are
// sorted so the output is stable.
func mapToGraphQLInput(input map[string]any) (string, error) {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		val, err := valueToGraphQL(input[k])
		if err != nil {
			return "", fmt.Errorf("failed to convert value for key %q: %w", k, err)
		}
		parts = append(parts, k+": "+val)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

func valueToGraphQL(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		// JSON string escapes are a subset of what GraphQL accepts; %q is not.
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal string: %w", err)
		}
		return string(b), nil
	case int, int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case bool:
		return fmt.Sprintf("%t", val), nil
	case map[string]any:
		return mapToGraphQLInput(val)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(b), nil
	}
}
