// Package saltyboy is the HTTP rating source backed by the salty-boy fighter API.
package saltyboy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/ratings"
	"github.com/okian/saltyscope/pkg/logger"
)

const (
	// DefaultBaseURL is the public fighter endpoint.
	DefaultBaseURL = "https://salty-boy.com/api"

	fighterPath = "/fighter/"

	defaultTimeout = 5 * time.Second
	defaultRPS     = 4
	defaultBurst   = 4
)

// ErrStatus is returned for non-2xx responses.
var ErrStatus = errors.New("unexpected status")

// fighter is one entry of the results array. Missing or zero numbers are absent.
type fighter struct {
	Elo     *float64 `json:"elo"`
	TierElo *float64 `json:"tier_elo"`
	Tier    string   `json:"tier"`
}

type fighterResponse struct {
	Results []fighter `json:"results"`
}

// Client implements ratings.Source.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     logger.Logger
}

var _ ratings.Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json"),
		limiter: rate.NewLimiter(defaultRPS, defaultBurst),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches the first result for identity. No results is ratings.ErrNotFound.
// No retry is attempted.
func (c *Client) Lookup(ctx context.Context, identity string) (model.Rating, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Rating{}, fmt.Errorf("saltyboy: rate limit: %w", err)
	}

	var body fighterResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", identity).
		SetResult(&body).
		Get(fighterPath)
	if err != nil {
		return model.Rating{}, fmt.Errorf("saltyboy: lookup %q: %w", identity, err)
	}
	if resp.IsError() {
		return model.Rating{}, fmt.Errorf("saltyboy: lookup %q: %w: %d", identity, ErrStatus, resp.StatusCode())
	}
	if len(body.Results) == 0 {
		c.log.Warn(ctx, "no results for fighter", logger.String("name", identity))
		return model.Rating{}, ratings.ErrNotFound
	}
	return toRating(body.Results[0]), nil
}

func toRating(f fighter) model.Rating {
	tier := strings.TrimSpace(f.Tier)
	if tier == "" || tier == "N/A" {
		tier = model.TierUnknown
	}
	return model.Rating{
		Rating:     value(f.Elo),
		TierRating: value(f.TierElo),
		Tier:       tier,
	}
}

func value(v *float64) model.RatingValue {
	if v == nil || *v == 0 {
		return model.Unknown
	}
	return model.Known(*v)
}
