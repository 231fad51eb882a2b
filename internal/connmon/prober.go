package connmon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pdcpos/posoffline/internal/common"
)

// Prober answers a single question: is the remote endpoint reachable right
// now? Implementations must be cheap, side-effect free and bounded in time.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber probes a lightweight ping endpoint. Redirects are never
// followed and only 204 No Content counts as success: captive portals answer
// with a redirect or a 200 login page, and both must read as unreachable.
type HTTPProber struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

func NewHTTPProber(endpoint string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		endpoint: endpoint,
		timeout:  timeout,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("probe got status %d: %w", resp.StatusCode, common.ErrUnavailable)
	}
	return nil
}
