// Package chaindeploy is a Go client for the chaindeploy HTTP API.
package chaindeploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the chaindeploy REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Network is one entry of the resolved network table. Remote networks carry
// no host or port.
type Network struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	NetworkID string `json:"network_id"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Gas       uint64 `json:"gas,omitempty"`
	GasPrice  string `json:"gas_price,omitempty"`
}

// Solc carries the compiler options published by the server.
type Solc struct {
	Optimizer struct {
		Enabled bool `json:"enabled"`
		Runs    int  `json:"runs"`
	} `json:"optimizer"`
}

// DeploymentRequest is the payload accepted by SubmitDeployment.
type DeploymentRequest struct {
	ID       string   `json:"id,omitempty"`
	Network  string   `json:"network"`
	Contract string   `json:"contract,omitempty"`
	ABI      string   `json:"abi"`
	Bytecode string   `json:"bytecode"`
	Args     []string `json:"args,omitempty"`
	From     string   `json:"from,omitempty"`
}

// DeploymentResult describes a mined deployment.
type DeploymentResult struct {
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
}

// Deployment is the server's view of a deployment job.
type Deployment struct {
	ID         string            `json:"id"`
	Network    string            `json:"network"`
	Contract   string            `json:"contract"`
	From       string            `json:"from,omitempty"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Result     *DeploymentResult `json:"result,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// Terminal reports whether the deployment will not change any more.
func (d Deployment) Terminal() bool {
	switch d.Status {
	case "succeeded":
		return true
	case "failed":
		return d.Attempts >= d.MaxRetries
	}
	return false
}

// Stats aggregates deployment counts by status.
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListQuery filters ListDeployments. Zero values are omitted.
type ListQuery struct {
	Limit    int
	Offset   int
	Statuses []string
	Network  string
	// Order is "asc" or "desc" by update time.
	Order string
}

func (q ListQuery) encode() string {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if len(q.Statuses) > 0 {
		values.Set("status", strings.Join(q.Statuses, ","))
	}
	if q.Network != "" {
		values.Set("network", q.Network)
	}
	if q.Order != "" {
		values.Set("order", q.Order)
	}
	return values.Encode()
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Retryable  bool              `json:"retryable,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("chaindeploy api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chaindeploy api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API at rawURL. When httpClient is
// nil a client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the bearer token sent with each request.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the bearer token. An empty token sends none.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// Networks lists the resolved networks.
func (c *Client) Networks(ctx context.Context) ([]Network, error) {
	var out []Network
	if err := c.get(ctx, "/api/v1/networks", "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Network fetches one network by name.
func (c *Client) Network(ctx context.Context, name string) (Network, error) {
	var out Network
	if err := c.get(ctx, "/api/v1/networks/"+url.PathEscape(name), "", &out); err != nil {
		return Network{}, err
	}
	return out, nil
}

// Solc fetches the compiler options.
func (c *Client) Solc(ctx context.Context) (Solc, error) {
	var out Solc
	if err := c.get(ctx, "/api/v1/solc", "", &out); err != nil {
		return Solc{}, err
	}
	return out, nil
}

// SubmitDeployment queues a deployment.
func (c *Client) SubmitDeployment(ctx context.Context, req DeploymentRequest) (Deployment, error) {
	var out Deployment
	if err := c.post(ctx, "/api/v1/deployments", req, &out); err != nil {
		return Deployment{}, err
	}
	return out, nil
}

// GetDeployment fetches a deployment by ID.
func (c *Client) GetDeployment(ctx context.Context, id string) (Deployment, error) {
	var out Deployment
	if err := c.get(ctx, "/api/v1/deployments/"+url.PathEscape(id), "", &out); err != nil {
		return Deployment{}, err
	}
	return out, nil
}

// ListDeployments lists deployments matching q.
func (c *Client) ListDeployments(ctx context.Context, q ListQuery) ([]Deployment, error) {
	var out []Deployment
	if err := c.get(ctx, "/api/v1/deployments", q.encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the deployment counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := c.get(ctx, "/api/v1/deployments/stats", "", &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// WaitForDeployment polls until the deployment succeeds, fails for good, or
// ctx is done.
func (c *Client) WaitForDeployment(ctx context.Context, id string, interval time.Duration) (Deployment, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		dep, err := c.GetDeployment(ctx, id)
		if err != nil {
			return Deployment{}, err
		}
		if dep.Terminal() {
			return dep, nil
		}
		select {
		case <-ctx.Done():
			return dep, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, "", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint, query string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint, query string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
