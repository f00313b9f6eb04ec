package models

import "time"

// Latest-event markers recorded on ruleset rows. They describe the most
// recent thing that happened to a column's metadata, not the run lifecycle.
const (
	RulesetEventMetadataLoaded     = "metadata_loaded"
	RulesetEventMetadataUpdated    = "metadata_updated"
	RulesetEventDiscoveryCompleted = "discovery_completed"
	RulesetEventAlgorithmUpdated   = "algorithm_updated"
)

// DiscoveredColumn is one row of the discovered ruleset: everything known
// about a single warehouse column, keyed by (database, schema, table,
// column).
type DiscoveredColumn struct {
	DatabaseName      string     `json:"database_name"`
	SchemaName        string     `json:"schema_name"`
	TableName         string     `json:"table_name"`
	ColumnName        string     `json:"column_name"`
	ColumnType        string     `json:"column_type"`
	MaxLength         *int       `json:"max_length,omitempty"`
	OrdinalPosition   int        `json:"ordinal_position"`
	RowCount          int64      `json:"row_count"`
	ProfiledDomain    *string    `json:"profiled_domain,omitempty"`
	ProfiledAlgorithm *string    `json:"profiled_algorithm,omitempty"`
	ConfidenceScore   *float64   `json:"confidence_score,omitempty"`
	RowsProfiled      int        `json:"rows_profiled"`
	AssignedAlgorithm *string    `json:"assigned_algorithm,omitempty"`
	DiscoveryComplete bool       `json:"discovery_complete"`
	LatestEvent       string     `json:"latest_event"`
	LastUpdated       *time.Time `json:"last_updated,omitempty"`
}

// EffectiveAlgorithm returns the algorithm a masking run should apply to
// this column: a user assignment wins over the profiled suggestion. Empty
// means the column is passed through unmasked.
func (c *DiscoveredColumn) EffectiveAlgorithm() string {
	if c.AssignedAlgorithm != nil && *c.AssignedAlgorithm != "" {
		return *c.AssignedAlgorithm
	}
	if c.ProfiledAlgorithm != nil {
		return *c.ProfiledAlgorithm
	}
	return ""
}

// Algorithm is one entry of the masking algorithm catalog.
type Algorithm struct {
	Name     string `json:"algorithm_name"`
	Type     string `json:"algorithm_type"`
	IsActive bool   `json:"is_active"`
}
