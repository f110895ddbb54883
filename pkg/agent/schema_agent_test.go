package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/insightloop/core/pkg/models"
)

func TestRankTables_OverlapAndForeignKeyProximity(t *testing.T) {
	full := &models.SchemaDescriptor{
		Tables: []models.TableDescriptor{
			{Name: "orders", Columns: []models.ColumnDescriptor{
				{Name: "id"},
				{Name: "customer_id", ForeignKey: &models.ForeignKeyRef{Table: "customers", Column: "id"}},
				{Name: "total"},
			}},
			{Name: "customers", Columns: []models.ColumnDescriptor{
				{Name: "id"}, {Name: "name"},
			}},
			{Name: "products", Columns: []models.ColumnDescriptor{
				{Name: "id"}, {Name: "sku"},
			}},
		},
		Dialect: "postgres",
	}

	ranked := rankTables(full, "how many orders per customer")

	names := make([]string, len(ranked.Tables))
	for i, t := range ranked.Tables {
		names[i] = t.Name
	}
	assert.Contains(t, names, "orders")
	assert.Contains(t, names, "customers")
	assert.NotContains(t, names, "products")
	assert.Equal(t, "orders", names[0])
}

func TestRankTables_EmptyQuestionReturnsFull(t *testing.T) {
	full := &models.SchemaDescriptor{Tables: []models.TableDescriptor{{Name: "a"}, {Name: "b"}}}
	ranked := rankTables(full, "")
	assert.Len(t, ranked.Tables, 2)
}
