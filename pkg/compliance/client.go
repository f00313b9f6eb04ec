package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/models"
)

const (
	profilePath = "/v1/discovery/profileByColumn"
	maskPath    = "/v1/masking/batchMaskByColumn"

	// batchIDColumn sequences rows within one masking request so the API can
	// return records in submission order.
	batchIDColumn = "DELPHIX_COMPLIANCE_SERVICE_BATCH_ID"
)

// Client calls the compliance API. Safe for concurrent use; the token source
// caches the bearer token and refreshes it on expiry.
type Client struct {
	baseURL   string
	creds     Credentials
	transport Transport
	tokens    oauth2.TokenSource
	logger    *zap.Logger
}

// NewClient builds a client for the API at baseURL using the given
// credentials and transport.
func NewClient(baseURL string, creds Credentials, transport Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		creds:     creds,
		transport: transport,
		tokens:    newTokenSource(creds, transport),
		logger:    logger,
	}
}

// VerifyCredentials exchanges the client's credentials for a token and
// discards it. A nil return means the identity provider accepted the client
// ID and secret; no API endpoint is called.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	if _, err := fetchToken(ctx, c.creds, c.transport); err != nil {
		return apperrors.API("credential check failed: %v", err)
	}
	return nil
}

// ProfileResult carries the sensitive-column detections of one profiling call.
type ProfileResult struct {
	Detections []models.ProfiledColumn
	// APIRunID is the Run-Id header sent with the call, for correlating with
	// provider-side logs.
	APIRunID string
}

// MaskResult carries one masked batch.
type MaskResult struct {
	Rows     *warehouse.RowSet
	APIRunID string
}

// newAPIRunID generates the per-call Run-Id header value.
func newAPIRunID() string {
	return "sf-" + uuid.NewString()
}

// post issues one authenticated POST against an API path.
func (c *Client) post(ctx context.Context, path, runID string, extraHeaders map[string]string, body []byte) (*Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, apperrors.API("token exchange failed: %v", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
		"Content-Type":  "application/json",
		"Run-Id":        runID,
	}
	for k, v := range extraHeaders {
		headers[k] = v
	}

	return c.transport.Post(ctx, c.baseURL+path, headers, body)
}

// ProfileByColumn submits sample values per column and returns the columns
// the API classified as sensitive. Detections without an algorithm are
// dropped; they carry no masking instruction.
func (c *Client) ProfileByColumn(ctx context.Context, samples map[string][]string) (*ProfileResult, error) {
	body, err := json.Marshal(samples)
	if err != nil {
		return nil, fmt.Errorf("encode profiling payload: %w", err)
	}

	runID := newAPIRunID()
	c.logger.Debug("Profiling columns",
		zap.Int("columns", len(samples)),
		zap.String("api_run_id", runID))

	resp, err := c.post(ctx, profilePath, runID, nil, body)
	if err != nil {
		return nil, apperrors.API("profiling call failed: %v", err)
	}
	if resp.StatusCode != 200 {
		return nil, apperrors.API("profiling returned %d: %s", resp.StatusCode, excerpt(resp.Body))
	}

	var parsed struct {
		Items struct {
			Details []models.ProfiledColumn `json:"details"`
		} `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, apperrors.API("invalid profiling response: %v", err)
	}

	detections := make([]models.ProfiledColumn, 0, len(parsed.Items.Details))
	for _, d := range parsed.Items.Details {
		if d.Algorithm == "" {
			continue
		}
		detections = append(detections, d)
	}

	c.logger.Debug("Profiling complete",
		zap.Int("detections", len(detections)),
		zap.String("api_run_id", runID))

	return &ProfileResult{
		Detections: detections,
		APIRunID:   runID,
	}, nil
}

// MaskBatch sends the assigned columns of one batch for masking and returns
// the batch with masked values merged back in. Unassigned columns pass
// through untouched and the original column order is preserved.
func (c *Client) MaskBatch(ctx context.Context, rows *warehouse.RowSet, assignments map[string]string) (*MaskResult, error) {
	n := rows.NumRows()
	if n == 0 {
		return &MaskResult{Rows: &warehouse.RowSet{Columns: rows.Columns}}, nil
	}
	if len(assignments) == 0 {
		return nil, apperrors.ErrInvalidInput
	}

	colIndex := make(map[string]int, len(rows.Columns))
	for i, name := range rows.Columns {
		colIndex[name] = i
	}

	payload := make(map[string][]any, len(assignments)+1)
	for col := range assignments {
		idx, ok := colIndex[col]
		if !ok {
			return nil, fmt.Errorf("assigned column %q not in batch: %w", col, apperrors.ErrInvalidInput)
		}
		values := make([]any, n)
		for i, row := range rows.Rows {
			values[i] = wireValue(row[idx])
		}
		payload[col] = values
	}

	batchIDs := make([]any, n)
	for i := range batchIDs {
		batchIDs[i] = i + 1
	}
	payload[batchIDColumn] = batchIDs

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode masking payload: %w", err)
	}

	assignmentHeader, err := json.Marshal(assignments)
	if err != nil {
		return nil, fmt.Errorf("encode algorithm assignments: %w", err)
	}

	runID := newAPIRunID()
	c.logger.Debug("Masking batch",
		zap.Int("rows", n),
		zap.Int("columns", len(assignments)),
		zap.String("api_run_id", runID))

	resp, err := c.post(ctx, maskPath, runID, map[string]string{
		"Field-Algorithm-Assignment": string(assignmentHeader),
	}, body)
	if err != nil {
		return nil, apperrors.API("masking call failed: %v", err)
	}
	if resp.StatusCode != 200 {
		return nil, apperrors.API("masking returned %d: %s", resp.StatusCode, excerpt(resp.Body))
	}

	var parsed struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, apperrors.API("invalid masking response: %v", err)
	}
	if len(parsed.Items) != n {
		return nil, apperrors.API("masking returned %d records for %d rows", len(parsed.Items), n)
	}

	// Records carry the batch-id column precisely so row identity survives
	// the call; order by it rather than trusting response order.
	ordered := make([]map[string]any, n)
	for i, item := range parsed.Items {
		idx := i
		if raw, ok := item[batchIDColumn]; ok {
			id, err := batchIDValue(raw)
			if err != nil {
				return nil, apperrors.API("masking returned bad %s: %v", batchIDColumn, err)
			}
			idx = id - 1
		}
		if idx < 0 || idx >= n {
			return nil, apperrors.API("masking returned %s %d outside batch of %d rows", batchIDColumn, idx+1, n)
		}
		if ordered[idx] != nil {
			return nil, apperrors.API("masking returned duplicate %s %d", batchIDColumn, idx+1)
		}
		ordered[idx] = item
	}

	merged := &warehouse.RowSet{
		Columns: rows.Columns,
		Rows:    make([][]any, n),
	}
	for i, original := range rows.Rows {
		row := make([]any, len(rows.Columns))
		for j, col := range rows.Columns {
			if _, assigned := assignments[col]; assigned {
				if masked, ok := ordered[i][col]; ok {
					row[j] = masked
					continue
				}
			}
			row[j] = original[j]
		}
		merged.Rows[i] = row
	}

	return &MaskResult{
		Rows:     merged,
		APIRunID: runID,
	}, nil
}

// wireValue swaps driver values without a sensible JSON form for their text
// rendering. Everything else keeps its native type so numbers stay numbers
// in the payload.
func wireValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return v
	}
}

// batchIDValue reads a batch-id cell, tolerating the quoted numbers the API
// sometimes returns.
func batchIDValue(v any) (int, error) {
	switch id := v.(type) {
	case float64:
		return int(id), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", id)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// excerpt truncates a response body for error messages.
func excerpt(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
