package expo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/croessner/authprobe/client/engine"
)

// Fetcher retrieves snapshots from a metrics endpoint.
type Fetcher struct {
	doer engine.Doer
}

func NewFetcher(doer engine.Doer) *Fetcher {
	return &Fetcher{doer: doer}
}

// Fetch fails with engine.ErrTransport when the endpoint is unreachable or answers with a non-2xx status.
func (f *Fetcher) Fetch(ctx context.Context, endpoint string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTransport, err)
	}

	req.Header.Set("Accept", "text/plain; version=0.0.4")

	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTransport, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", engine.ErrTransport, endpoint, resp.StatusCode)
	}

	snap, err := Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTransport, err)
	}

	return snap, nil
}
