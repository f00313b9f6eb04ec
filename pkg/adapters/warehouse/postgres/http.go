package postgres

import (
	"context"
	"fmt"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

// httpCaller posts through the pgsql-http extension, so the request leaves
// from the warehouse host rather than from the engine. Requires
// CREATE EXTENSION http on the connected database.
type httpCaller struct {
	adapter *Adapter
}

// NativeHTTP returns the pgsql-http caller. The extension itself is only
// probed on first use; a missing extension surfaces as a query error.
func (a *Adapter) NativeHTTP() (warehouse.HTTPCaller, bool) {
	return &httpCaller{adapter: a}, true
}

// Post sends body to url with the given headers through http_post's generic
// form. Content-Type travels in the http_request composite, not the header
// list, so it is split off before building the call.
func (c *httpCaller) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*warehouse.HTTPResponse, error) {
	contentType := "application/json"
	keys := make([]string, 0, len(headers))
	values := make([]string, 0, len(headers))
	for k, v := range headers {
		if k == "Content-Type" {
			contentType = v
			continue
		}
		keys = append(keys, k)
		values = append(values, v)
	}

	const query = `
		SELECT status, content
		FROM http((
			'POST',
			$1,
			(SELECT array_agg(http_header(k, v)) FROM unnest($2::text[], $3::text[]) AS h(k, v)),
			$4,
			$5
		)::http_request)
	`

	var status int
	var content string
	err := c.adapter.pool.QueryRow(ctx, query, url, keys, values, contentType, string(body)).Scan(&status, &content)
	if err != nil {
		return nil, fmt.Errorf("warehouse http post to %s: %w", url, err)
	}

	return &warehouse.HTTPResponse{
		StatusCode: status,
		Body:       []byte(content),
	}, nil
}

var _ warehouse.HTTPCaller = (*httpCaller)(nil)
