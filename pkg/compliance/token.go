package compliance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials identifies the service principal the engine exchanges for
// bearer tokens.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenURLForTenant derives the identity provider's v2.0 token endpoint for
// a tenant, in the trailing-slash form the deployed service registrations
// use. Sovereign clouds override the whole URL through configuration
// instead.
func TokenURLForTenant(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token/", tenantID)
}

// transportRoundTripper adapts a Transport into an http.RoundTripper so the
// oauth2 token fetch travels over the same path as API calls. In embedded
// deployments even the identity provider is only reachable through the
// warehouse's HTTP function.
type transportRoundTripper struct {
	transport Transport
}

func (rt *transportRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost {
		return nil, fmt.Errorf("token transport only posts, got %s", req.Method)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read token request body: %w", err)
		}
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}

	resp, err := rt.transport.Post(req.Context(), req.URL.String(), headers, body)
	if err != nil {
		return nil, err
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}

// oauthConfig maps Credentials onto the client-credentials grant. Credentials
// go in the form body, not basic auth, which is what the identity provider's
// v2.0 endpoint expects from this tenant setup.
func oauthConfig(creds Credentials) *clientcredentials.Config {
	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if creds.Scope != "" {
		cc.Scopes = []string{creds.Scope}
	}
	return cc
}

// oauthContext routes the oauth2 library's HTTP calls through our Transport.
func oauthContext(ctx context.Context, transport Transport) context.Context {
	httpClient := &http.Client{
		Transport: &transportRoundTripper{transport: transport},
		Timeout:   30 * time.Second,
	}
	return context.WithValue(ctx, oauth2.HTTPClient, httpClient)
}

// newTokenSource builds a cached client-credentials token source.
func newTokenSource(creds Credentials, transport Transport) oauth2.TokenSource {
	return oauthConfig(creds).TokenSource(oauthContext(context.Background(), transport))
}

// fetchToken performs one uncached token exchange. The settings page uses it
// to check credentials without leaving a stale token behind.
func fetchToken(ctx context.Context, creds Credentials, transport Transport) (*oauth2.Token, error) {
	return oauthConfig(creds).Token(oauthContext(ctx, transport))
}
