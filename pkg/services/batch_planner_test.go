package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

func intp(v int) *int { return &v }

func TestPlanBatches_EmptyTable(t *testing.T) {
	plan := PlanBatches(0, nil, map[string]string{"email": "EmailAlgo"}, 0)

	assert.Equal(t, emptyTableBatchRows, plan.BatchSize)
	assert.Equal(t, int64(0), plan.TotalRows)
	assert.Equal(t, 0, plan.TotalBatches)
	assert.Equal(t, "table is empty", plan.Reasoning)
}

func TestPlanBatches_NothingToMask(t *testing.T) {
	plan := PlanBatches(80000, nil, nil, 0)
	assert.Equal(t, passthroughBatchRows, plan.BatchSize)
	assert.Equal(t, 1, plan.TotalBatches)

	small := PlanBatches(300, nil, nil, 0)
	assert.Equal(t, 300, small.BatchSize)
	assert.Equal(t, 1, small.TotalBatches)
}

func TestPlanBatches_SizesFromAssignedColumnsOnly(t *testing.T) {
	columns := []warehouse.ColumnInfo{
		{Name: "id", DataType: "BIGINT"},
		{Name: "email", DataType: "CHARACTER VARYING", MaxLength: intp(100)},
		{Name: "notes", DataType: "TEXT"},
	}
	plan := PlanBatches(100000, columns, map[string]string{"email": "EmailAlgo"}, 1800000)

	assert.Equal(t, 100, plan.BytesPerRow, "unassigned columns must not count")
	assert.Equal(t, 18000, plan.BatchSize)
	assert.Equal(t, 6, plan.TotalBatches)
	assert.Equal(t, 1800000, plan.EstimatedBatchBytes)
}

func TestPlanBatches_RoundsDownToTens(t *testing.T) {
	columns := []warehouse.ColumnInfo{{Name: "active", DataType: "BOOLEAN"}}
	plan := PlanBatches(100000, columns, map[string]string{"active": "BoolAlgo"}, 8347)

	assert.Equal(t, 8340, plan.BatchSize)
	assert.Equal(t, 12, plan.TotalBatches)
}

func TestPlanBatches_FloorsAtMinimum(t *testing.T) {
	columns := []warehouse.ColumnInfo{
		{Name: "a", DataType: "CHARACTER VARYING", MaxLength: intp(1000)},
		{Name: "b", DataType: "CHARACTER VARYING", MaxLength: intp(1000)},
		{Name: "c", DataType: "CHARACTER VARYING", MaxLength: intp(1000)},
	}
	assignments := map[string]string{"a": "X", "b": "X", "c": "X"}
	plan := PlanBatches(45, columns, assignments, 2000)

	assert.Equal(t, minBatchRows, plan.BatchSize, "tiny ceiling must not starve batches")
	assert.Equal(t, 5, plan.TotalBatches)
}

func TestPlanBatches_CollapsesToSingleBatch(t *testing.T) {
	columns := []warehouse.ColumnInfo{{Name: "id", DataType: "INTEGER"}}
	plan := PlanBatches(120, columns, map[string]string{"id": "NumAlgo"}, 1800000)

	assert.Equal(t, 120, plan.BatchSize)
	assert.Equal(t, 1, plan.TotalBatches)
}

func TestPlanBatches_UnknownAssignedColumns(t *testing.T) {
	columns := []warehouse.ColumnInfo{{Name: "id", DataType: "INTEGER"}}
	plan := PlanBatches(100, columns, map[string]string{"ghost": "Algo"}, 1800000)

	assert.Equal(t, defaultColumnBytes, plan.BytesPerRow)
	assert.Equal(t, 100, plan.BatchSize)
	assert.Equal(t, 1, plan.TotalBatches)
}

func TestPlanBatches_DefaultCeiling(t *testing.T) {
	columns := []warehouse.ColumnInfo{{Name: "active", DataType: "BOOLEAN"}}
	plan := PlanBatches(5000000, columns, map[string]string{"active": "BoolAlgo"}, 0)

	assert.Equal(t, 1800000, plan.BatchSize)
	assert.Equal(t, 3, plan.TotalBatches)
}

func TestPlanBatches_CeilingHolds(t *testing.T) {
	columns := []warehouse.ColumnInfo{
		{Name: "email", DataType: "CHARACTER VARYING", MaxLength: intp(320)},
		{Name: "ssn", DataType: "CHARACTER VARYING", MaxLength: intp(11)},
		{Name: "amount", DataType: "NUMERIC", Precision: intp(12)},
	}
	assignments := map[string]string{"email": "X", "ssn": "X", "amount": "X"}

	// The estimate stays under the ceiling whenever the 10-row floor did not
	// take over, across table sizes and ceilings.
	for _, rows := range []int64{10, 999, 10000, 1048576} {
		for _, ceiling := range []int{4096, 65536, 1800000} {
			plan := PlanBatches(rows, columns, assignments, ceiling)
			assert.GreaterOrEqual(t, plan.BatchSize, minBatchRows,
				"rows=%d ceiling=%d", rows, ceiling)
			if plan.BatchSize > minBatchRows {
				assert.LessOrEqual(t, plan.EstimatedBatchBytes, ceiling,
					"rows=%d ceiling=%d", rows, ceiling)
			}
		}
	}
}

func TestColumnByteEstimate(t *testing.T) {
	tests := []struct {
		name string
		col  warehouse.ColumnInfo
		want int
	}{
		{"varchar with length", warehouse.ColumnInfo{DataType: "CHARACTER VARYING", MaxLength: intp(255)}, 255},
		{"varchar capped", warehouse.ColumnInfo{DataType: "NVARCHAR", MaxLength: intp(4000)}, 1000},
		{"text without length", warehouse.ColumnInfo{DataType: "TEXT"}, 100},
		{"numeric wide precision", warehouse.ColumnInfo{DataType: "NUMERIC", Precision: intp(38)}, 19},
		{"numeric narrow precision floors", warehouse.ColumnInfo{DataType: "DECIMAL", Precision: intp(10)}, 8},
		{"numeric without precision", warehouse.ColumnInfo{DataType: "NUMERIC"}, 16},
		{"money", warehouse.ColumnInfo{DataType: "MONEY"}, 16},
		{"integer", warehouse.ColumnInfo{DataType: "INTEGER"}, 8},
		{"bigint", warehouse.ColumnInfo{DataType: "BIGINT"}, 8},
		{"double precision", warehouse.ColumnInfo{DataType: "DOUBLE PRECISION"}, 8},
		{"real", warehouse.ColumnInfo{DataType: "REAL"}, 8},
		{"boolean", warehouse.ColumnInfo{DataType: "BOOLEAN"}, 1},
		{"bit", warehouse.ColumnInfo{DataType: "BIT"}, 1},
		{"date", warehouse.ColumnInfo{DataType: "DATE"}, 10},
		{"timestamp beats time prefix", warehouse.ColumnInfo{DataType: "TIMESTAMP WITHOUT TIME ZONE"}, 25},
		{"datetime2", warehouse.ColumnInfo{DataType: "DATETIME2"}, 25},
		{"time of day", warehouse.ColumnInfo{DataType: "TIME WITHOUT TIME ZONE"}, 12},
		{"unknown type", warehouse.ColumnInfo{DataType: "JSONB"}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, columnByteEstimate(tt.col))
		})
	}
}
