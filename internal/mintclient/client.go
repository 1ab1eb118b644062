// Package mintclient is the pool's HTTP client for the mint's quote-
// listing endpoint, with multi-upstream failover for pools that run
// more than one mint. Grounded on internal/rpc/tos_client.go (an
// http.Client wrapped with a timeout and a success/fail health
// counter) and internal/rpc/upstream.go (the failover manager that
// picks one healthy upstream by weight, demotes it after a run of
// failures, and promotes it back after a run of successes).
package mintclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashpool/hashpool/internal/util"
)

// Quote is one entry returned by GET /quotes?status=paid.
type Quote struct {
	ID     string `json:"id"`
	Amount uint64 `json:"amount"`
	Status string `json:"status"`
}

// Client talks to a single mint's HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.RWMutex
	healthy      bool
	failCount    int
	successCount int
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		healthy: true,
	}
}

// PaidQuotes fetches GET /quotes?status=paid.
func (c *Client) PaidQuotes(ctx context.Context) ([]Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quotes?status=paid", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mintclient: unexpected status %d from %s", resp.StatusCode, c.baseURL)
	}
	var quotes []Quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (c *Client) recordSuccess(maxFailuresBeforeDown, recoveryThreshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successCount++
	if !c.healthy && c.successCount >= recoveryThreshold {
		c.healthy = true
		c.failCount = 0
		util.Infof("mint upstream %s recovered", c.baseURL)
	} else if c.healthy {
		c.failCount = 0
	}
}

func (c *Client) recordFailure(maxFailuresBeforeDown int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCount++
	c.successCount = 0
	if c.healthy && c.failCount >= maxFailuresBeforeDown {
		c.healthy = false
		util.Warnf("mint upstream %s marked unhealthy after %d failures", c.baseURL, c.failCount)
	}
}

func (c *Client) isHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}
