// Package models holds the core entities the analysis and execution engine
// manipulates: datasources, schemas, agent messages, plans, tasks,
// executions, rules, alerts and memory events.
package models

import "time"

// DatasourceType enumerates the supported database engines.
type DatasourceType string

const (
	DatasourcePostgres   DatasourceType = "postgres"
	DatasourceMySQL      DatasourceType = "mysql"
	DatasourceMSSQL      DatasourceType = "mssql"
	DatasourceClickHouse DatasourceType = "clickhouse"
	DatasourceDuckDB     DatasourceType = "duckdb"
	DatasourceSQLite     DatasourceType = "sqlite"
	DatasourceSnowflake  DatasourceType = "snowflake"
	DatasourceBigQuery   DatasourceType = "bigquery"
	DatasourceTrino      DatasourceType = "trino"
)

// DatasourceStatus tracks whether a Datasource can currently serve queries.
type DatasourceStatus string

const (
	DatasourceStatusActive   DatasourceStatus = "active"
	DatasourceStatusInactive DatasourceStatus = "inactive"
	DatasourceStatusError    DatasourceStatus = "error"
)

// Datasource is a configured connection target. At most one Datasource in a
// registry may have IsDefault set; the registry enforces this invariant.
type Datasource struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	Type         DatasourceType    `json:"type" yaml:"type"`
	Connection   map[string]string `json:"connection" yaml:"connection"`
	Status       DatasourceStatus  `json:"status" yaml:"status"`
	IsDefault    bool              `json:"is_default" yaml:"is_default"`
	LastUsedAt   *time.Time        `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at" yaml:"updated_at"`
}

// CreateDatasourceRequest carries the fields needed to register a Datasource.
type CreateDatasourceRequest struct {
	Name       string            `json:"name"`
	Type       DatasourceType    `json:"type"`
	Connection map[string]string `json:"connection"`
	IsDefault  bool              `json:"is_default,omitempty"`
}

// UpdateDatasourceRequest carries optional field updates for an existing
// Datasource; nil pointers leave the corresponding field untouched.
type UpdateDatasourceRequest struct {
	Name       *string            `json:"name,omitempty"`
	Connection *map[string]string `json:"connection,omitempty"`
	Status     *DatasourceStatus  `json:"status,omitempty"`
	IsDefault  *bool              `json:"is_default,omitempty"`
}
