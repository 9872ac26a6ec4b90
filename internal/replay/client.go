package replay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Status is the subset of GET /status a scenario can check.
type Status struct {
	MatchID       string `json:"matchId"`
	Consumed      bool   `json:"consumed"`
	WindowOpen    bool   `json:"bettingOpen"`
	Reason        string `json:"reason"`
	StatusMessage string `json:"statusMessage"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// client talks to the service API.
type client struct {
	http *resty.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{http: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")}
}

func (c *client) health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode())
	}
	return nil
}

// observe posts one observation. accepted is false on backpressure.
func (c *client) observe(ctx context.Context, obs Observation) (accepted bool, err error) {
	var apiErr apiError
	resp, err := c.http.R().SetContext(ctx).SetBody(obs).SetError(&apiErr).Post("/observations")
	if err != nil {
		return false, fmt.Errorf("post observation: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusAccepted:
		return true, nil
	case http.StatusTooManyRequests:
		return false, nil
	default:
		return false, fmt.Errorf("post observation: status %d: %s", resp.StatusCode(), apiErr.Message)
	}
}

func (c *client) putPolicy(ctx context.Context, policy map[string]any) error {
	var apiErr apiError
	resp, err := c.http.R().SetContext(ctx).SetBody(policy).SetError(&apiErr).Put("/policy")
	if err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("put policy: status %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return nil
}

func (c *client) rebet(ctx context.Context) (Status, error) {
	var st Status
	resp, err := c.http.R().SetContext(ctx).SetResult(&st).Post("/rebet")
	if err != nil {
		return Status{}, fmt.Errorf("rebet: %w", err)
	}
	if resp.IsError() {
		return Status{}, fmt.Errorf("rebet: status %d", resp.StatusCode())
	}
	return st, nil
}

func (c *client) status(ctx context.Context) (Status, error) {
	var st Status
	resp, err := c.http.R().SetContext(ctx).SetResult(&st).Get("/status")
	if err != nil {
		return Status{}, fmt.Errorf("get status: %w", err)
	}
	if resp.IsError() {
		return Status{}, fmt.Errorf("get status: status %d", resp.StatusCode())
	}
	return st, nil
}
