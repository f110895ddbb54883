package database

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/insightloop/core/pkg/models"
)

// newTestClient starts a throwaway PostgreSQL container, applies the
// embedded migrations, and returns a ready client.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	require.NoError(t, runMigrations(db))

	client := NewClientFromDB(db)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_HealthAndMigrations(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	health, err := Health(ctx, client.DB().DB)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestDatasourceStore_CRUDAndSingleDefault(t *testing.T) {
	client := newTestClient(t)
	store := NewDatasourceStore(client)
	ctx := context.Background()

	first, err := store.Create(ctx, models.CreateDatasourceRequest{
		Name: "sales", Type: models.DatasourcePostgres,
		Connection: map[string]string{"host": "db1"}, IsDefault: true,
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	// Duplicate name conflicts.
	_, err = store.Create(ctx, models.CreateDatasourceRequest{Name: "sales", Type: models.DatasourcePostgres})
	assert.Error(t, err)

	// A second default steals the flag from the first.
	second, err := store.Create(ctx, models.CreateDatasourceRequest{
		Name: "ops", Type: models.DatasourceMySQL, IsDefault: true,
	})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	reloaded, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault)

	def, err := store.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	// Update round-trip.
	newName := "ops-primary"
	updated, err := store.Update(ctx, second.ID, models.UpdateDatasourceRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "ops-primary", updated.Name)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete(ctx, first.ID))
	_, err = store.Get(ctx, first.ID)
	assert.Error(t, err)
}

func TestAlertStore_SuppressionLookup(t *testing.T) {
	client := newTestClient(t)
	store := NewAlertStore(client)
	ctx := context.Background()

	alert := models.Alert{
		ID: "a1", RuleID: "r1", MetricKey: "m", CurrentValue: 1.5,
		Operator: models.OpGT, Threshold: 1.0,
		TriggeredAt: time.Now().UTC().Truncate(time.Microsecond),
		Status:      models.AlertTriggered,
		Diagnosis:   &models.Diagnosis{Summary: "m breached", KeyPoints: []string{"check pipeline"}},
	}
	require.NoError(t, store.Append(ctx, alert))

	got, ok, err := store.LatestUnacknowledged(ctx, "r1", "m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1", got.ID)
	require.NotNil(t, got.Diagnosis)
	assert.Equal(t, "m breached", got.Diagnosis.Summary)

	got.Status = models.AlertAcknowledged
	require.NoError(t, store.Update(ctx, got))

	_, ok, err = store.LatestUnacknowledged(ctx, "r1", "m")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutionStore_SaveRoundTrip(t *testing.T) {
	client := newTestClient(t)
	store := NewExecutionStore(client)
	ctx := context.Background()

	exe := &models.Execution{
		ExecutionID: "e1", PlanID: "p1", State: models.ExecutionRunning,
		Question: "why did revenue drop",
		Tasks: []models.Task{
			{TaskID: "a", Title: "A", AssignedAgent: "sql-analyst", Status: models.TaskRunning},
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Save(ctx, exe))

	exe.State = models.ExecutionCompleted
	exe.Tasks[0].Status = models.TaskCompleted
	require.NoError(t, store.Save(ctx, exe))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, got.State)
	assert.Equal(t, models.TaskCompleted, got.Tasks[0].Status)

	running, err := store.ListByState(ctx, models.ExecutionRunning)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestQueryHistoryAndCorrectionLogs(t *testing.T) {
	client := newTestClient(t)
	queries := NewQueryHistoryStore(client)
	corrections := NewCorrectionLogStore(client)
	ctx := context.Background()

	require.NoError(t, queries.RecordQuery(ctx, models.QueryRecord{
		ID: "q1", DatasourceID: "ds1", SQL: "SELECT 1", DurationMS: 12, RowCount: 1, Status: "success",
	}))
	require.NoError(t, queries.RecordQuery(ctx, models.QueryRecord{
		ID: "q2", DatasourceID: "ds1", SQL: "SELECT nope", Status: "error", ErrorMessage: "column nope does not exist",
	}))

	recent, err := queries.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	require.NoError(t, corrections.Append(ctx, "an1", models.CorrectionAttempt{
		Attempt: 1, SQL: "SELECT nope", EngineError: "column nope does not exist",
	}))
	trail, err := corrections.ListByAnalysis(ctx, "an1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, 1, trail[0].Attempt)
}

func TestConfigStore_LastWriterWins(t *testing.T) {
	client := newTestClient(t)
	store := NewConfigStore(client)
	ctx := context.Background()

	require.NoError(t, store.PutDoc(ctx, DocEmailConfig, map[string]any{"to": "a@example.com"}))
	require.NoError(t, store.PutDoc(ctx, DocEmailConfig, map[string]any{"to": "b@example.com"}))

	var doc map[string]any
	require.NoError(t, store.GetDoc(ctx, DocEmailConfig, &doc))
	assert.Equal(t, "b@example.com", doc["to"])

	_, err := store.UpdatedAt(ctx, DocEmailConfig)
	assert.NoError(t, err)
}
