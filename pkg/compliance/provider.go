package compliance

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

// CredentialSource resolves the API base URL and service principal at call
// time. The settings service implements it; tests substitute fakes.
type CredentialSource interface {
	ComplianceCredentials(ctx context.Context) (string, Credentials, error)
}

// Provider hands out clients built from the latest resolved credentials, so
// a settings change applies to the next execution without a restart. While
// the credentials stay the same the client is reused, and with it the
// cached token.
type Provider struct {
	source    CredentialSource
	transport Transport
	logger    *zap.Logger

	mu      sync.Mutex
	client  *Client
	baseURL string
	creds   Credentials
}

// NewProvider creates a provider over the given credential source and
// transport.
func NewProvider(source CredentialSource, transport Transport, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		source:    source,
		transport: transport,
		logger:    logger,
	}
}

// Client resolves the current credentials and returns a client for them.
func (p *Provider) Client(ctx context.Context) (*Client, error) {
	baseURL, creds, err := p.source.ComplianceCredentials(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil || p.baseURL != baseURL || p.creds != creds {
		p.client = NewClient(baseURL, creds, p.transport, p.logger)
		p.baseURL = baseURL
		p.creds = creds
		p.logger.Info("Compliance client configured", zap.String("base_url", baseURL))
	}
	return p.client, nil
}

// ProfileByColumn resolves a client and profiles through it.
func (p *Provider) ProfileByColumn(ctx context.Context, samples map[string][]string) (*ProfileResult, error) {
	client, err := p.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.ProfileByColumn(ctx, samples)
}

// MaskBatch resolves a client and masks through it.
func (p *Provider) MaskBatch(ctx context.Context, rows *warehouse.RowSet, assignments map[string]string) (*MaskResult, error) {
	client, err := p.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.MaskBatch(ctx, rows, assignments)
}
