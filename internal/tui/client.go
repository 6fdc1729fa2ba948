package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/shiftwatch/internal/api"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the shiftwatch API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

func (c *Client) get(path string, v interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Now fetches the current block and the members on duty
func (c *Client) Now() (*api.NowView, error) {
	var now api.NowView
	if err := c.get("/now", &now); err != nil {
		return nil, err
	}
	return &now, nil
}

// Week fetches this week's merged shifts, one slice per working day
func (c *Client) Week() ([][]api.ShiftView, error) {
	var week [][]api.ShiftView
	if err := c.get("/shifts/week", &week); err != nil {
		return nil, err
	}
	return week, nil
}

// Healthy reports whether the daemon answers its health check
func (c *Client) Healthy() bool {
	var health api.HealthResponse
	return c.get("/health", &health) == nil && health.OK
}
