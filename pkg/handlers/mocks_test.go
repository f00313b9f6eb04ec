package handlers

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/auth"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/services"
)

// testAuthMiddleware returns a pass-through middleware, the shape a local
// deployment without an identity provider runs with.
func testAuthMiddleware() *auth.Middleware {
	return auth.NewMiddleware(nil, false, zap.NewNop())
}

// mockDiscoveryService is a configurable mock for discovery handler tests.
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
	return "exec-discovery-test", nil
}

// mockMaskingService is a configurable mock for masking handler tests.
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
	return "exec-masking-test", nil
}

// mockRunsService is a configurable mock for runs handler tests.
type mockRunsService struct {
	stats     *models.RunStatistics
	recent    []models.EventLogEntry
	execution []models.EventLogEntry
	snapshot  *services.MonitoringSnapshot
	live      *models.ExecutionProgress
	err       error

	recentLimit     int
	monitoringLimit int
	executionID     string
	progressID      string
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
	m.recentLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.recent, nil
}

func (m *mockRunsService) Execution(ctx context.Context, executionID string) ([]models.EventLogEntry, error) {
	m.executionID = executionID
	if m.err != nil {
		return nil, m.err
	}
	return m.execution, nil
}

func (m *mockRunsService) Monitoring(ctx context.Context, limit int) (*services.MonitoringSnapshot, error) {
	m.monitoringLimit = limit
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
	m.progressID = executionID
	if m.live == nil || m.live.ExecutionID != executionID {
		return models.ExecutionProgress{}, false
	}
	return *m.live, true
}

// mockWarehouseService is a configurable mock for warehouse handler tests.
type mockWarehouseService struct {
	schemas []string
	tables  []warehouse.TableInfo
	columns []warehouse.ColumnInfo
	err     error
	testErr error
}

func (m *mockWarehouseService) TestConnection(ctx context.Context) error {
	return m.testErr
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

// mockRulesetService is a configurable mock for ruleset handler tests.
type mockRulesetService struct {
	columns    []models.DiscoveredColumn
	tables     []string
	algorithms []models.Algorithm
	err        error

	assignedRef       models.TableRef
	assignedColumn    string
	assignedAlgorithm string
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
	m.assignedRef = table
	m.assignedColumn = column
	m.assignedAlgorithm = algorithm
	return m.err
}

// mockSettingsService is a configurable mock for settings handler tests.
type mockSettingsService struct {
	settings []models.Setting
	baseURL  string
	creds    compliance.Credentials
	err      error

	setKey   string
	setValue string
}

func (m *mockSettingsService) List(ctx context.Context) ([]models.Setting, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settings, nil
}

func (m *mockSettingsService) Set(ctx context.Context, key, value string) error {
	m.setKey = key
	m.setValue = value
	return m.err
}

func (m *mockSettingsService) ComplianceCredentials(ctx context.Context) (string, compliance.Credentials, error) {
	if m.err != nil {
		return "", compliance.Credentials{}, m.err
	}
	return m.baseURL, m.creds, nil
}

// fakeTokenTransport answers token-endpoint posts for credential-check tests
// without any network.
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
