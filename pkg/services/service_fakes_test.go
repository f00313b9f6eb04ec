package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/compliance"
	"github.com/veildata/veil-engine/pkg/models"
	"github.com/veildata/veil-engine/pkg/repositories"
)

// fakeAdapter implements warehouse.Adapter with per-method hooks. Methods
// without a hook fail loudly so a test never silently exercises an
// interaction it did not set up. Every call is appended to calls for
// ordering assertions.
type fakeAdapter struct {
	mu    sync.Mutex
	calls []string

	describeTableFn       func(schema, table string) ([]warehouse.ColumnInfo, error)
	countRowsFn           func(schema, table string) (int64, error)
	sampleRowsFn          func(schema, table string, limit int) (*warehouse.RowSet, error)
	readChunkFn           func(schema, table string, limit, offset int) (*warehouse.RowSet, error)
	tableExistsFn         func(schema, table string) (bool, error)
	createTableLikeFn     func(destSchema, destTable, srcSchema, srcTable string) error
	createTableAsSelectFn func(destSchema, destTable, srcSchema, srcTable string) error
	deleteAllRowsFn       func(schema, table string) (int64, error)
	appendRowsFn          func(schema, table string, rs *warehouse.RowSet) (int64, error)
	insertFromTableFn     func(destSchema, destTable, srcSchema, srcTable string) (int64, error)
	dropTableFn           func(schema, table string) error
	listSchemasFn         func() ([]string, error)
	listTablesFn          func(schema string) ([]warehouse.TableInfo, error)
	testConnectionFn      func() error
}

var _ warehouse.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAdapter) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) TestConnection(ctx context.Context) error {
	if f.testConnectionFn != nil {
		return f.testConnectionFn()
	}
	return nil
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (f *fakeAdapter) NativeHTTP() (warehouse.HTTPCaller, bool) { return nil, false }

func (f *fakeAdapter) ListSchemas(ctx context.Context) ([]string, error) {
	f.record("ListSchemas")
	if f.listSchemasFn == nil {
		return nil, fmt.Errorf("unexpected ListSchemas call")
	}
	return f.listSchemasFn()
}

func (f *fakeAdapter) ListTables(ctx context.Context, schema string) ([]warehouse.TableInfo, error) {
	f.record("ListTables %s", schema)
	if f.listTablesFn == nil {
		return nil, fmt.Errorf("unexpected ListTables call for %s", schema)
	}
	return f.listTablesFn(schema)
}

func (f *fakeAdapter) DescribeTable(ctx context.Context, schema, table string) ([]warehouse.ColumnInfo, error) {
	f.record("DescribeTable %s.%s", schema, table)
	if f.describeTableFn == nil {
		return nil, fmt.Errorf("unexpected DescribeTable call for %s.%s", schema, table)
	}
	return f.describeTableFn(schema, table)
}

func (f *fakeAdapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	f.record("CountRows %s.%s", schema, table)
	if f.countRowsFn == nil {
		return 0, fmt.Errorf("unexpected CountRows call for %s.%s", schema, table)
	}
	return f.countRowsFn(schema, table)
}

func (f *fakeAdapter) SampleRows(ctx context.Context, schema, table string, limit int) (*warehouse.RowSet, error) {
	f.record("SampleRows %s.%s limit=%d", schema, table, limit)
	if f.sampleRowsFn == nil {
		return nil, fmt.Errorf("unexpected SampleRows call for %s.%s", schema, table)
	}
	return f.sampleRowsFn(schema, table, limit)
}

func (f *fakeAdapter) ReadChunk(ctx context.Context, schema, table string, limit, offset int) (*warehouse.RowSet, error) {
	f.record("ReadChunk %s.%s limit=%d offset=%d", schema, table, limit, offset)
	if f.readChunkFn == nil {
		return nil, fmt.Errorf("unexpected ReadChunk call for %s.%s", schema, table)
	}
	return f.readChunkFn(schema, table, limit, offset)
}

func (f *fakeAdapter) TableExists(ctx context.Context, schema, table string) (bool, error) {
	f.record("TableExists %s.%s", schema, table)
	if f.tableExistsFn == nil {
		return false, fmt.Errorf("unexpected TableExists call for %s.%s", schema, table)
	}
	return f.tableExistsFn(schema, table)
}

func (f *fakeAdapter) CreateTableLike(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error {
	f.record("CreateTableLike %s.%s from %s.%s", destSchema, destTable, srcSchema, srcTable)
	if f.createTableLikeFn == nil {
		return fmt.Errorf("unexpected CreateTableLike call for %s.%s", destSchema, destTable)
	}
	return f.createTableLikeFn(destSchema, destTable, srcSchema, srcTable)
}

func (f *fakeAdapter) CreateTableAsSelect(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) error {
	f.record("CreateTableAsSelect %s.%s from %s.%s", destSchema, destTable, srcSchema, srcTable)
	if f.createTableAsSelectFn == nil {
		return fmt.Errorf("unexpected CreateTableAsSelect call for %s.%s", destSchema, destTable)
	}
	return f.createTableAsSelectFn(destSchema, destTable, srcSchema, srcTable)
}

func (f *fakeAdapter) DeleteAllRows(ctx context.Context, schema, table string) (int64, error) {
	f.record("DeleteAllRows %s.%s", schema, table)
	if f.deleteAllRowsFn == nil {
		return 0, fmt.Errorf("unexpected DeleteAllRows call for %s.%s", schema, table)
	}
	return f.deleteAllRowsFn(schema, table)
}

func (f *fakeAdapter) AppendRows(ctx context.Context, schema, table string, rs *warehouse.RowSet) (int64, error) {
	f.record("AppendRows %s.%s rows=%d", schema, table, rs.NumRows())
	if f.appendRowsFn == nil {
		return 0, fmt.Errorf("unexpected AppendRows call for %s.%s", schema, table)
	}
	return f.appendRowsFn(schema, table, rs)
}

func (f *fakeAdapter) InsertFromTable(ctx context.Context, destSchema, destTable, srcSchema, srcTable string) (int64, error) {
	f.record("InsertFromTable %s.%s from %s.%s", destSchema, destTable, srcSchema, srcTable)
	if f.insertFromTableFn == nil {
		return 0, fmt.Errorf("unexpected InsertFromTable call for %s.%s", destSchema, destTable)
	}
	return f.insertFromTableFn(destSchema, destTable, srcSchema, srcTable)
}

func (f *fakeAdapter) DropTable(ctx context.Context, schema, table string) error {
	f.record("DropTable %s.%s", schema, table)
	if f.dropTableFn == nil {
		return fmt.Errorf("unexpected DropTable call for %s.%s", schema, table)
	}
	return f.dropTableFn(schema, table)
}

// fakeComplianceAPI stands in for the compliance client. Without hooks,
// ProfileByColumn reports nothing sensitive and MaskBatch prefixes assigned
// values with "masked:".
type fakeComplianceAPI struct {
	mu        sync.Mutex
	profileFn func(samples map[string][]string) (*compliance.ProfileResult, error)
	maskFn    func(rows *warehouse.RowSet, assignments map[string]string) (*compliance.MaskResult, error)

	profileCalls []map[string][]string
	maskCalls    []maskCall
}

type maskCall struct {
	rowCount    int
	assignments map[string]string
}

var _ ComplianceAPI = (*fakeComplianceAPI)(nil)

func (f *fakeComplianceAPI) ProfileByColumn(ctx context.Context, samples map[string][]string) (*compliance.ProfileResult, error) {
	f.mu.Lock()
	f.profileCalls = append(f.profileCalls, samples)
	f.mu.Unlock()

	if f.profileFn != nil {
		return f.profileFn(samples)
	}
	return &compliance.ProfileResult{APIRunID: "sf-fake"}, nil
}

func (f *fakeComplianceAPI) MaskBatch(ctx context.Context, rows *warehouse.RowSet, assignments map[string]string) (*compliance.MaskResult, error) {
	f.mu.Lock()
	f.maskCalls = append(f.maskCalls, maskCall{rowCount: rows.NumRows(), assignments: assignments})
	f.mu.Unlock()

	if f.maskFn != nil {
		return f.maskFn(rows, assignments)
	}

	masked := &warehouse.RowSet{Columns: append([]string(nil), rows.Columns...)}
	for _, row := range rows.Rows {
		out := make([]any, len(row))
		for j, col := range rows.Columns {
			if _, ok := assignments[col]; ok {
				out[j] = "masked:" + warehouse.TextValue(row[j])
			} else {
				out[j] = row[j]
			}
		}
		masked.Rows = append(masked.Rows, out)
	}
	return &compliance.MaskResult{Rows: masked, APIRunID: "sf-fake"}, nil
}

func (f *fakeComplianceAPI) profileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profileCalls)
}

func (f *fakeComplianceAPI) maskCallLog() []maskCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]maskCall(nil), f.maskCalls...)
}

// fakeEventsRepo keeps the events log in memory and enforces the same
// forward-only transitions as the real repository.
type fakeEventsRepo struct {
	mu         sync.Mutex
	created    []models.EventLogEntry
	statuses   map[string]models.RunStatus
	advances   []advanceCall
	finalized  []string
	createErr  func(entry *models.EventLogEntry) error
	advanceErr func(runID string, status models.RunStatus) error
	statsFn    func() (*models.RunStatistics, error)
	recentErr  error
}

type advanceCall struct {
	runID   string
	status  models.RunStatus
	message string
}

var _ repositories.EventsRepository = (*fakeEventsRepo)(nil)

func newFakeEventsRepo() *fakeEventsRepo {
	return &fakeEventsRepo{statuses: make(map[string]models.RunStatus)}
}

func (f *fakeEventsRepo) Create(ctx context.Context, entry *models.EventLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		if err := f.createErr(entry); err != nil {
			return err
		}
	}
	f.created = append(f.created, *entry)
	f.statuses[entry.RunID] = models.RunStatusWaiting
	return nil
}

func (f *fakeEventsRepo) Advance(ctx context.Context, executionID, runID string, status models.RunStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.advanceErr != nil {
		if err := f.advanceErr(runID, status); err != nil {
			return err
		}
	}

	current, ok := f.statuses[runID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%s -> %s: %w", current, status, apperrors.ErrRunStateInvalid)
	}
	f.statuses[runID] = status
	f.advances = append(f.advances, advanceCall{runID: runID, status: status, message: errorMessage})
	return nil
}

func (f *fakeEventsRepo) GetByExecution(ctx context.Context, executionID string) ([]models.EventLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entries []models.EventLogEntry
	for _, entry := range f.created {
		if entry.ExecutionID != executionID {
			continue
		}
		entry.RunStatus = f.statuses[entry.RunID]
		entries = append(entries, entry)
	}
	return entries, nil
}

func (f *fakeEventsRepo) Recent(ctx context.Context, limit int) ([]models.EventLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recentErr != nil {
		return nil, f.recentErr
	}
	entries := make([]models.EventLogEntry, 0, len(f.created))
	for i := len(f.created) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := f.created[i]
		entry.RunStatus = f.statuses[entry.RunID]
		entries = append(entries, entry)
	}
	return entries, nil
}

func (f *fakeEventsRepo) FinalizeExecution(ctx context.Context, executionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, executionID)
	return 0, nil
}

func (f *fakeEventsRepo) Statistics(ctx context.Context) (*models.RunStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsFn != nil {
		return f.statsFn()
	}
	return &models.RunStatistics{}, nil
}

func (f *fakeEventsRepo) statusOf(runID string) models.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[runID]
}

func (f *fakeEventsRepo) advanceLog() []advanceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]advanceCall(nil), f.advances...)
}

func (f *fakeEventsRepo) finalizedExecutions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.finalized...)
}

// fakeRulesetRepo records metadata merges and discovery results, and serves
// canned rulesets to the masking flow.
type fakeRulesetRepo struct {
	mu       sync.Mutex
	upserts  map[string][]models.DiscoveredColumn
	applied  []applyDiscoveryCall
	rulesets map[string][]models.DiscoveredColumn
	assigns  []assignCall

	upsertErr error
	applyErr  error
	rulesErr  error
	assignErr error
}

type applyDiscoveryCall struct {
	table        models.TableRef
	detections   []models.ProfiledColumn
	rowsProfiled int
}

type assignCall struct {
	table     string
	column    string
	algorithm string
}

var _ repositories.RulesetRepository = (*fakeRulesetRepo)(nil)

func newFakeRulesetRepo() *fakeRulesetRepo {
	return &fakeRulesetRepo{
		upserts:  make(map[string][]models.DiscoveredColumn),
		rulesets: make(map[string][]models.DiscoveredColumn),
	}
}

func rulesetKey(database, schema, table string) string {
	return database + "." + schema + "." + table
}

func (f *fakeRulesetRepo) UpsertColumnMetadata(ctx context.Context, columns []models.DiscoveredColumn) (*repositories.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	for _, col := range columns {
		key := rulesetKey(col.DatabaseName, col.SchemaName, col.TableName)
		f.upserts[key] = append(f.upserts[key], col)
	}
	return &repositories.MergeResult{Inserted: len(columns)}, nil
}

func (f *fakeRulesetRepo) ApplyDiscovery(ctx context.Context, table models.TableRef, detections []models.ProfiledColumn, rowsProfiled int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.applyErr != nil {
		return 0, f.applyErr
	}
	f.applied = append(f.applied, applyDiscoveryCall{table: table, detections: detections, rowsProfiled: rowsProfiled})
	return len(detections), nil
}

func (f *fakeRulesetRepo) AssignAlgorithm(ctx context.Context, database, schema, table, column, algorithm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.assignErr != nil {
		return f.assignErr
	}
	if _, ok := f.rulesets[rulesetKey(database, schema, table)]; !ok {
		return fmt.Errorf("column %s.%s.%s not in ruleset: %w", schema, table, column, apperrors.ErrNotFound)
	}
	f.assigns = append(f.assigns, assignCall{
		table:     rulesetKey(database, schema, table),
		column:    column,
		algorithm: algorithm,
	})
	return nil
}

func (f *fakeRulesetRepo) GetTableRuleset(ctx context.Context, database, schema, table string) ([]models.DiscoveredColumn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	return f.rulesets[rulesetKey(database, schema, table)], nil
}

func (f *fakeRulesetRepo) GetSchemaRuleset(ctx context.Context, database, schema string) ([]models.DiscoveredColumn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	var columns []models.DiscoveredColumn
	for _, table := range f.tableKeysLocked(database, schema) {
		columns = append(columns, f.rulesets[rulesetKey(database, schema, table)]...)
	}
	return columns, nil
}

func (f *fakeRulesetRepo) ListTables(ctx context.Context, database, schema string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	return f.tableKeysLocked(database, schema), nil
}

// tableKeysLocked returns the sorted table names stored under one schema.
func (f *fakeRulesetRepo) tableKeysLocked(database, schema string) []string {
	prefix := database + "." + schema + "."
	var tables []string
	for key := range f.rulesets {
		if strings.HasPrefix(key, prefix) {
			tables = append(tables, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(tables)
	return tables
}

func (f *fakeRulesetRepo) appliedCalls() []applyDiscoveryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]applyDiscoveryCall(nil), f.applied...)
}

func (f *fakeRulesetRepo) upsertedFor(key string) []models.DiscoveredColumn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DiscoveredColumn(nil), f.upserts[key]...)
}

func (f *fakeRulesetRepo) assignLog() []assignCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]assignCall(nil), f.assigns...)
}

// fakeAlgorithmRepo serves a fixed algorithm catalog.
type fakeAlgorithmRepo struct {
	algorithms []models.Algorithm
	listErr    error
}

var _ repositories.AlgorithmRepository = (*fakeAlgorithmRepo)(nil)

func (f *fakeAlgorithmRepo) ListActive(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for _, alg := range f.algorithms {
		if alg.IsActive {
			names = append(names, alg.Name)
		}
	}
	return names, nil
}

func (f *fakeAlgorithmRepo) List(ctx context.Context) ([]models.Algorithm, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Algorithm(nil), f.algorithms...), nil
}
