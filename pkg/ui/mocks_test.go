package ui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/config"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/services"
)

const testTokenJSON = `{"access_token": "test-token", "token_type": "Bearer", "expires_in": 3600}`

func dashboardTestConfig() *config.Config {
	cfg := &config.Config{Env: "local", SessionKey: "dashboard-test-session-key"}
	cfg.Warehouse.Database = "warehouse"
	cfg.Masking.SampleSize = 1000
	return cfg
}

// dashboard bundles a handler over mock services with a routed mux, the way
// a browser reaches it.
type dashboard struct {
	discovery *mockDiscoveryService
	masking   *mockMaskingService
	runs      *mockRunsService
	warehouse *mockWarehouseService
	ruleset   *mockRulesetService
	settings  *mockSettingsService
	transport *fakeTokenTransport
	mux       *http.ServeMux
}

func newDashboard(t *testing.T) *dashboard {
	t.Helper()
	d := &dashboard{
		discovery: &mockDiscoveryService{},
		masking:   &mockMaskingService{},
		runs:      &mockRunsService{},
		warehouse: &mockWarehouseService{},
		ruleset:   &mockRulesetService{},
		settings:  &mockSettingsService{},
		transport: &fakeTokenTransport{status: http.StatusOK, body: testTokenJSON},
	}
	handler := NewHandler(d.discovery, d.masking, d.runs, d.warehouse, d.ruleset, d.settings,
		d.transport, dashboardTestConfig(), zap.NewNop())
	d.mux = http.NewServeMux()
	handler.RegisterRoutes(d.mux)
	return d
}

func (d *dashboard) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	d.mux.ServeHTTP(rec, req)
	return rec
}

// postForm submits a dashboard form with a matching CSRF token pair, like a
// browser that loaded the page first.
func (d *dashboard) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	form.Set("csrf_token", "test-csrf-token")
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "test-csrf-token"})
	rec := httptest.NewRecorder()
	d.mux.ServeHTTP(rec, req)
	return rec
}

// postFormNoToken submits a form without any CSRF token, like a cross-site
// request would.
func (d *dashboard) postFormNoToken(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	d.mux.ServeHTTP(rec, req)
	return rec
}

// followFlash replays the session cookies a redirect set onto a GET of the
// redirect target, so tests can read the flash the way a browser would.
func (d *dashboard) followFlash(t *testing.T, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	location := rec.Header().Get("Location")
	if location == "" {
		t.Fatalf("expected a redirect to follow, got status %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, location, nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	next := httptest.NewRecorder()
	d.mux.ServeHTTP(next, req)
	return next
}

type mockDiscoveryService struct {
	executionID string
	err         error

	tables     []models.TableRef
	sampleSize int
	calls      int
}

func (m *mockDiscoveryService) StartDiscovery(ctx context.Context, tables []models.TableRef, sampleSize int) (string, error) {
	m.calls++
	m.tables = tables
	m.sampleSize = sampleSize
	if m.err != nil {
		return "", m.err
	}
	if m.executionID != "" {
		return m.executionID, nil
	}
	return "exec-ui-discovery", nil
}

type mockMaskingService struct {
	executionID string
	err         error

	req   services.MaskingRequest
	calls int
}

func (m *mockMaskingService) StartMasking(ctx context.Context, req services.MaskingRequest) (string, error) {
	m.calls++
	m.req = req
	if m.err != nil {
		return "", m.err
	}
	if m.executionID != "" {
		return m.executionID, nil
	}
	return "exec-ui-masking", nil
}

type mockRunsService struct {
	stats     *models.RunStatistics
	recent    []models.EventLogEntry
	execution []models.EventLogEntry
	snapshot  *services.MonitoringSnapshot
	live      *models.ExecutionProgress
	err       error
}

func (m *mockRunsService) Statistics(ctx context.Context) (*models.RunStatistics, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.stats != nil {
		return m.stats, nil
	}
	return &models.RunStatistics{}, nil
}

func (m *mockRunsService) Recent(ctx context.Context, limit int) ([]models.EventLogEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.recent, nil
}

func (m *mockRunsService) Execution(ctx context.Context, executionID string) ([]models.EventLogEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.execution, nil
}

func (m *mockRunsService) Monitoring(ctx context.Context, limit int) (*services.MonitoringSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.snapshot != nil {
		return m.snapshot, nil
	}
	return &services.MonitoringSnapshot{Statistics: &models.RunStatistics{}}, nil
}

func (m *mockRunsService) LiveProgress() (models.ExecutionProgress, bool) {
	if m.live == nil {
		return models.ExecutionProgress{}, false
	}
	return *m.live, true
}

func (m *mockRunsService) ExecutionProgress(executionID string) (models.ExecutionProgress, bool) {
	if m.live == nil || m.live.ExecutionID != executionID {
		return models.ExecutionProgress{}, false
	}
	return *m.live, true
}

type mockWarehouseService struct {
	schemas []string
	tables  []warehouse.TableInfo
	columns []warehouse.ColumnInfo
	err     error
}

func (m *mockWarehouseService) TestConnection(ctx context.Context) error {
	return m.err
}

func (m *mockWarehouseService) Schemas(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.schemas, nil
}

func (m *mockWarehouseService) Tables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tables, nil
}

func (m *mockWarehouseService) Columns(ctx context.Context, schema, table string) ([]warehouse.ColumnInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.columns, nil
}

type mockRulesetService struct {
	columns    []models.DiscoveredColumn
	tables     []string
	algorithms []models.Algorithm
	err        error
}

func (m *mockRulesetService) TableRuleset(ctx context.Context, table models.TableRef) ([]models.DiscoveredColumn, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.columns, nil
}

func (m *mockRulesetService) SchemaRuleset(ctx context.Context, database, schema string) ([]models.DiscoveredColumn, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.columns, nil
}

func (m *mockRulesetService) KnownTables(ctx context.Context, database, schema string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tables, nil
}

func (m *mockRulesetService) Algorithms(ctx context.Context) ([]models.Algorithm, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.algorithms, nil
}

func (m *mockRulesetService) AssignAlgorithm(ctx context.Context, table models.TableRef, column, algorithm string) error {
	return m.err
}

// mockSettingsService keeps separate error knobs per method: dashboard
// tests post a failing form and then follow the redirect back onto List.
type mockSettingsService struct {
	settings []models.Setting
	listErr  error
	setErr   error

	baseURL  string
	creds    compliance.Credentials
	credsErr error

	setKey   string
	setValue string
}

func (m *mockSettingsService) List(ctx context.Context) ([]models.Setting, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.settings, nil
}

func (m *mockSettingsService) Set(ctx context.Context, key, value string) error {
	m.setKey = key
	m.setValue = value
	return m.setErr
}

func (m *mockSettingsService) ComplianceCredentials(ctx context.Context) (string, compliance.Credentials, error) {
	if m.credsErr != nil {
		return "", compliance.Credentials{}, m.credsErr
	}
	return m.baseURL, m.creds, nil
}

// fakeTokenTransport answers token-endpoint posts without any network.
type fakeTokenTransport struct {
	status int
	body   string

	mu   sync.Mutex
	urls []string
}

func (t *fakeTokenTransport) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*compliance.Response, error) {
	t.mu.Lock()
	t.urls = append(t.urls, url)
	t.mu.Unlock()
	return &compliance.Response{StatusCode: t.status, Body: []byte(t.body)}, nil
}

func (t *fakeTokenTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}
