// Package compliance implements the client for the external classification
// and masking API: credential exchange, column profiling, and batch masking.
// All calls go through a Transport chosen once at startup, so the same client
// code serves deployments that call out directly and deployments that must
// route every request through the warehouse's HTTP SQL function.
package compliance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

// Response is the raw HTTP result either transport produces.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport sends one POST and returns the raw response. Implementations
// must honor ctx cancellation.
type Transport interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error)
}

// directTransport calls the API with a plain HTTP client.
type directTransport struct {
	client *http.Client
}

// NewDirectTransport returns the transport for external deployments.
func NewDirectTransport(timeout time.Duration) Transport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &directTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *directTransport) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}

// warehouseTransport rides the warehouse's HTTP SQL function, for embedded
// deployments where the engine has no egress of its own.
type warehouseTransport struct {
	caller warehouse.HTTPCaller
}

// NewWarehouseTransport returns the transport for embedded deployments.
func NewWarehouseTransport(caller warehouse.HTTPCaller) Transport {
	return &warehouseTransport{caller: caller}
}

func (t *warehouseTransport) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error) {
	resp, err := t.caller.Post(ctx, url, headers, body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}, nil
}

var (
	_ Transport = (*directTransport)(nil)
	_ Transport = (*warehouseTransport)(nil)
)
