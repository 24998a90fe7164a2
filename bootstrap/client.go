// Package bootstrap fetches a process's initial configuration and provides the operator-initiated sanity
// check calls against the bootstrap service: a thin wrapper over net/http with its own timeouts, hiding
// the transport from callers.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 10 * time.Second

// InitResponse is the body returned by GET /edge/init.
type InitResponse struct {
	Settings       map[string]interface{} `json:"settings"`
	Tasks          []interface{}           `json:"tasks"`
	BatteryConfigs map[string]interface{}  `json:"battery_configs"`
	RegisterMap    json.RawMessage         `json:"register_map"`
}

// ValidationResponse is the body returned by the validate-state and validate-modbus checks.
type ValidationResponse struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

// Client is the bootstrap service's HTTP client role.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
	}
}

// Init fetches the process's initial configuration. Failure here is fatal to the process - there is no
// partial-startup mode.
func (c *Client) Init(ctx context.Context) (*InitResponse, error) {
	var out InitResponse
	if err := c.get(ctx, "/edge/init", &out); err != nil {
		return nil, fmt.Errorf("edge init: %w", err)
	}
	return &out, nil
}

// ValidateState performs the operator-initiated state sanity check.
func (c *Client) ValidateState(ctx context.Context) (*ValidationResponse, error) {
	var out ValidationResponse
	if err := c.get(ctx, "/edge/validate-state", &out); err != nil {
		return nil, fmt.Errorf("validate state: %w", err)
	}
	return &out, nil
}

// ValidateModbus performs the operator-initiated field bus sanity check.
func (c *Client) ValidateModbus(ctx context.Context) (*ValidationResponse, error) {
	var out ValidationResponse
	if err := c.get(ctx, "/edge/validate-modbus", &out); err != nil {
		return nil, fmt.Errorf("validate modbus: %w", err)
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
