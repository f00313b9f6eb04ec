package services

import (
	"fmt"
	"strings"

	"github.com/veildata/veil-engine/pkg/adapters/warehouse"
)

const (
	// minBatchRows is the floor below which per-call overhead dominates.
	minBatchRows = 10
	// emptyTableBatchRows is the placeholder size reported for empty tables.
	emptyTableBatchRows = 1000
	// passthroughBatchRows sizes copies of tables with nothing to mask.
	passthroughBatchRows = 5000

	textByteCap         = 1000
	defaultTextBytes    = 100
	defaultNumericBytes = 16
	defaultColumnBytes  = 50

	defaultPayloadCeiling = 1800000
)

// BatchPlan sizes the masking requests for one table. Only the columns that
// will actually travel to the API count toward the payload estimate.
type BatchPlan struct {
	// BatchSize is rows per masking request.
	BatchSize int `json:"batch_size"`
	// TotalRows is the table's exact row count at planning time.
	TotalRows int64 `json:"total_rows"`
	// TotalBatches is how many requests the table needs. Zero for an empty
	// table.
	TotalBatches int `json:"total_batches"`
	// BytesPerRow is the estimated serialized size of one row's sensitive
	// columns.
	BytesPerRow int `json:"bytes_per_row"`
	// EstimatedBatchBytes is BatchSize * BytesPerRow.
	EstimatedBatchBytes int `json:"estimated_batch_bytes"`
	// Reasoning explains the numbers for the dashboard.
	Reasoning string `json:"reasoning"`
}

// PlanBatches computes the batch size for one table against the payload
// ceiling. Sizes are estimates from declared column types, rounded down to
// tens; the ceiling is a budget, not a hard protocol limit.
func PlanBatches(totalRows int64, columns []warehouse.ColumnInfo, assignments map[string]string, ceilingBytes int) *BatchPlan {
	if ceilingBytes <= 0 {
		ceilingBytes = defaultPayloadCeiling
	}

	if totalRows == 0 {
		return &BatchPlan{
			BatchSize: emptyTableBatchRows,
			Reasoning: "table is empty",
		}
	}

	if len(assignments) == 0 {
		batch := passthroughBatchRows
		if int64(batch) > totalRows {
			batch = int(totalRows)
		}
		return &BatchPlan{
			BatchSize:    batch,
			TotalRows:    totalRows,
			TotalBatches: 1,
			Reasoning:    "no columns to mask; data is copied, not sent",
		}
	}

	bytesPerRow := 0
	matched := 0
	for _, col := range columns {
		if _, ok := assignments[col.Name]; !ok {
			continue
		}
		bytesPerRow += columnByteEstimate(col)
		matched++
	}
	if matched == 0 {
		// Assignments name columns the metadata does not know; size them
		// blind rather than divide by zero.
		bytesPerRow = defaultColumnBytes * len(assignments)
	}

	batch := ceilingBytes / bytesPerRow
	if batch < minBatchRows {
		batch = minBatchRows
	}
	batch = (batch / 10) * 10
	if batch < minBatchRows {
		batch = minBatchRows
	}

	var totalBatches int
	if int64(batch) >= totalRows {
		batch = int(totalRows)
		totalBatches = 1
	} else {
		totalBatches = int((totalRows + int64(batch) - 1) / int64(batch))
	}

	return &BatchPlan{
		BatchSize:           batch,
		TotalRows:           totalRows,
		TotalBatches:        totalBatches,
		BytesPerRow:         bytesPerRow,
		EstimatedBatchBytes: batch * bytesPerRow,
		Reasoning: fmt.Sprintf(
			"%d rows, %d sensitive columns at ~%dB per row; %d rows per batch under the %dB ceiling, %d batches",
			totalRows, len(assignments), bytesPerRow, batch, ceilingBytes, totalBatches,
		),
	}
}

// columnByteEstimate estimates one column's serialized size from its declared
// type. Names are engine-reported and upper-cased; the cases cover both
// information_schema vocabularies the adapters produce.
func columnByteEstimate(col warehouse.ColumnInfo) int {
	dt := col.DataType
	switch {
	case strings.Contains(dt, "CHAR") || dt == "TEXT" || dt == "STRING":
		if col.MaxLength != nil && *col.MaxLength > 0 {
			if *col.MaxLength > textByteCap {
				return textByteCap
			}
			return *col.MaxLength
		}
		return defaultTextBytes
	case dt == "NUMERIC" || dt == "DECIMAL" || dt == "NUMBER" || dt == "MONEY" || dt == "SMALLMONEY":
		if col.Precision != nil && *col.Precision > 0 {
			if b := *col.Precision / 2; b > 8 {
				return b
			}
			return 8
		}
		return defaultNumericBytes
	case strings.Contains(dt, "INT"):
		return 8
	case strings.Contains(dt, "FLOAT") || strings.Contains(dt, "DOUBLE") || dt == "REAL":
		return 8
	case dt == "BOOLEAN" || dt == "BIT":
		return 1
	case dt == "DATE":
		return 10
	case strings.Contains(dt, "TIMESTAMP") || strings.Contains(dt, "DATETIME"):
		return 25
	case strings.HasPrefix(dt, "TIME"):
		return 12
	default:
		return defaultColumnBytes
	}
}
