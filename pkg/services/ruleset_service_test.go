package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/apperrors"
	"github.com/veildata/veil-engine/pkg/models"
)

func newRulesetFixture() (RulesetService, *fakeRulesetRepo, *fakeAlgorithmRepo) {
	rulesets := newFakeRulesetRepo()
	algorithms := &fakeAlgorithmRepo{
		algorithms: []models.Algorithm{
			{Name: "dlpx-core:Email SL", Type: "EMAIL", IsActive: true},
			{Name: "dlpx-core:FullName", Type: "FULL_NAME", IsActive: true},
			{Name: "dlpx-core:CM Digits", Type: "CREDIT_CARD", IsActive: false},
		},
	}
	svc := NewRulesetService(rulesets, algorithms, zap.NewNop())
	return svc, rulesets, algorithms
}

func seedColumns(repo *fakeRulesetRepo, table string, columns ...string) {
	key := rulesetKey("warehouse", "public", table)
	for i, name := range columns {
		repo.rulesets[key] = append(repo.rulesets[key], models.DiscoveredColumn{
			DatabaseName:    "warehouse",
			SchemaName:      "public",
			TableName:       table,
			ColumnName:      name,
			ColumnType:      "TEXT",
			OrdinalPosition: i + 1,
		})
	}
}

func TestRulesetService_TableRuleset(t *testing.T) {
	svc, repo, _ := newRulesetFixture()
	seedColumns(repo, "accounts", "id", "email")

	columns, err := svc.TableRuleset(context.Background(), testTable("accounts"))
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, "email", columns[1].ColumnName)
}

func TestRulesetService_TableRulesetNotFound(t *testing.T) {
	svc, _, _ := newRulesetFixture()

	_, err := svc.TableRuleset(context.Background(), testTable("ghost"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "public.ghost")
}

func TestRulesetService_SchemaRulesetEmptyIsFine(t *testing.T) {
	svc, _, _ := newRulesetFixture()

	columns, err := svc.SchemaRuleset(context.Background(), "warehouse", "public")
	require.NoError(t, err)
	assert.Empty(t, columns)
}

func TestRulesetService_KnownTables(t *testing.T) {
	svc, repo, _ := newRulesetFixture()
	seedColumns(repo, "orders", "id")
	seedColumns(repo, "accounts", "id")

	tables, err := svc.KnownTables(context.Background(), "warehouse", "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "orders"}, tables)
}

func TestRulesetService_Algorithms(t *testing.T) {
	svc, _, _ := newRulesetFixture()

	algorithms, err := svc.Algorithms(context.Background())
	require.NoError(t, err)
	require.Len(t, algorithms, 3)
	assert.Equal(t, "dlpx-core:Email SL", algorithms[0].Name)
}

func TestRulesetService_AssignAlgorithm(t *testing.T) {
	svc, repo, _ := newRulesetFixture()
	seedColumns(repo, "accounts", "email")

	err := svc.AssignAlgorithm(context.Background(), testTable("accounts"), "email", "dlpx-core:Email SL")
	require.NoError(t, err)

	assigns := repo.assignLog()
	require.Len(t, assigns, 1)
	assert.Equal(t, "warehouse.public.accounts", assigns[0].table)
	assert.Equal(t, "email", assigns[0].column)
	assert.Equal(t, "dlpx-core:Email SL", assigns[0].algorithm)
}

func TestRulesetService_AssignAlgorithmClearsWithEmpty(t *testing.T) {
	svc, repo, _ := newRulesetFixture()
	seedColumns(repo, "accounts", "email")

	err := svc.AssignAlgorithm(context.Background(), testTable("accounts"), "email", "")
	require.NoError(t, err)

	assigns := repo.assignLog()
	require.Len(t, assigns, 1)
	assert.Empty(t, assigns[0].algorithm)
}

func TestRulesetService_AssignAlgorithmRejectsUnknown(t *testing.T) {
	svc, repo, _ := newRulesetFixture()
	seedColumns(repo, "accounts", "email")

	err := svc.AssignAlgorithm(context.Background(), testTable("accounts"), "email", "my-made-up-algo")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, repo.assignLog())
}

func TestRulesetService_AssignAlgorithmRejectsInactive(t *testing.T) {
	svc, repo, _ := newRulesetFixture()
	seedColumns(repo, "accounts", "card_number")

	err := svc.AssignAlgorithm(context.Background(), testTable("accounts"), "card_number", "dlpx-core:CM Digits")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRulesetService_AssignAlgorithmUnknownColumn(t *testing.T) {
	svc, _, _ := newRulesetFixture()

	err := svc.AssignAlgorithm(context.Background(), testTable("ghost"), "email", "dlpx-core:Email SL")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRulesetService_AssignAlgorithmRequiresColumn(t *testing.T) {
	svc, _, _ := newRulesetFixture()

	err := svc.AssignAlgorithm(context.Background(), testTable("accounts"), "", "dlpx-core:Email SL")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
