package models

// ForeignKeyRef points a column at the table/column it references.
type ForeignKeyRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ColumnDescriptor describes one column of a table as reported by a
// database adapter's introspection call.
type ColumnDescriptor struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Nullable     bool           `json:"nullable"`
	PrimaryKey   bool           `json:"primary_key"`
	ForeignKey   *ForeignKeyRef `json:"foreign_key,omitempty"`
}

// TableDescriptor describes one table.
type TableDescriptor struct {
	Name     string             `json:"name"`
	Columns  []ColumnDescriptor `json:"columns"`
	RowCount *int64             `json:"row_count,omitempty"`
}

// SchemaDescriptor is the uniform, engine-independent schema shape every
// Adapter.Introspect call returns. It is derived and cacheable per
// datasource for a TTL (see pkg/memo).
type SchemaDescriptor struct {
	Tables  []TableDescriptor `json:"tables"`
	Dialect string            `json:"dialect"`
}

// TableByName finds a table by name, or returns (nil, false).
func (s *SchemaDescriptor) TableByName(name string) (*TableDescriptor, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}
