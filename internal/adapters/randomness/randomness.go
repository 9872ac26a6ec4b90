// Package randomness provides coin-flip sources: random.org over HTTP and a local PRNG.
package randomness

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/strategy"
)

// DefaultRandomOrgURL asks for one integer in [1,2] as plain text.
const DefaultRandomOrgURL = "https://www.random.org/integers/?num=1&min=1&max=2&col=1&base=10&format=plain&rnd=new"

// ErrInvalidDraw is returned when the service answers something other than 1 or 2.
var ErrInvalidDraw = errors.New("invalid random draw")

// RandomOrg draws from random.org. It is polite by default: one request per second.
type RandomOrg struct {
	http    *resty.Client
	url     string
	limiter *rate.Limiter
}

var _ strategy.Randomness = (*RandomOrg)(nil)

// NewRandomOrg creates a source for url (DefaultRandomOrgURL when empty).
func NewRandomOrg(url string, timeout time.Duration) *RandomOrg {
	if url == "" {
		url = DefaultRandomOrgURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RandomOrg{
		http:    resty.New().SetTimeout(timeout),
		url:     url,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Draw returns Slot1 or Slot2.
func (r *RandomOrg) Draw(ctx context.Context) (model.Slot, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return model.SlotNone, fmt.Errorf("random.org: rate limit: %w", err)
	}
	resp, err := r.http.R().SetContext(ctx).Get(r.url)
	if err != nil {
		return model.SlotNone, fmt.Errorf("random.org: %w", err)
	}
	if resp.IsError() {
		return model.SlotNone, fmt.Errorf("random.org: status %d", resp.StatusCode())
	}
	return parseDraw(resp.String())
}

func parseDraw(body string) (model.Slot, error) {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return model.SlotNone, fmt.Errorf("%w: %q", ErrInvalidDraw, body)
	}
	switch n {
	case 1:
		return model.Slot1, nil
	case 2:
		return model.Slot2, nil
	default:
		return model.SlotNone, fmt.Errorf("%w: %d", ErrInvalidDraw, n)
	}
}

// Local draws from an in-process PRNG.
type Local struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ strategy.Randomness = (*Local)(nil)

// NewLocal seeds a PCG source. Equal seeds give equal sequences.
func NewLocal(seed1, seed2 uint64) *Local {
	return &Local{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Draw returns Slot1 or Slot2 with equal probability.
func (l *Local) Draw(ctx context.Context) (model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return model.SlotNone, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rng.IntN(2) == 0 {
		return model.Slot1, nil
	}
	return model.Slot2, nil
}
