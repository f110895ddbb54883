// Package services is the wiring layer: it composes the adapter pool,
// pipeline, planning engine, execution machine, and monitoring loop into
// the public operations, wrapping every result in the standard envelope.
package services

import (
	"context"
	"time"

	"github.com/insightloop/core/pkg/adapter"
	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// DatasourceRepository is the persistence surface DatasourceService needs.
// The database package provides the durable implementation; tests use an
// in-memory double.
type DatasourceRepository interface {
	Create(ctx context.Context, req models.CreateDatasourceRequest) (*models.Datasource, error)
	Get(ctx context.Context, id string) (*models.Datasource, error)
	GetDefault(ctx context.Context) (*models.Datasource, error)
	List(ctx context.Context) ([]models.Datasource, error)
	Update(ctx context.Context, id string, req models.UpdateDatasourceRequest) (*models.Datasource, error)
	Delete(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string) error
}

// TestConnectionResult reports the outcome of a connection probe.
type TestConnectionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms"`
}

// DatasourceService handles datasource CRUD, connection testing, schema
// introspection, and raw query execution.
type DatasourceService struct {
	repo     DatasourceRepository
	pool     *adapter.Pool
	registry *adapter.Registry
}

// NewDatasourceService creates a new DatasourceService.
func NewDatasourceService(repo DatasourceRepository, pool *adapter.Pool, registry *adapter.Registry) *DatasourceService {
	if repo == nil {
		panic("NewDatasourceService: repo must not be nil")
	}
	if pool == nil {
		panic("NewDatasourceService: pool must not be nil")
	}
	return &DatasourceService{repo: repo, pool: pool, registry: registry}
}

// List returns every registered datasource.
func (s *DatasourceService) List(ctx context.Context) errs.Envelope[[]models.Datasource] {
	out, err := s.repo.List(ctx)
	if err != nil {
		return errs.Fail[[]models.Datasource](asTaxonomy(err))
	}
	return errs.Ok(out)
}

// Create registers a new datasource.
func (s *DatasourceService) Create(ctx context.Context, req models.CreateDatasourceRequest) errs.Envelope[*models.Datasource] {
	if req.Name == "" {
		return errs.Fail[*models.Datasource](errs.New(errs.KindValidation, "datasource name is required", nil))
	}
	if req.Type == "" {
		return errs.Fail[*models.Datasource](errs.New(errs.KindValidation, "datasource type is required", nil))
	}
	ds, err := s.repo.Create(ctx, req)
	if err != nil {
		return errs.Fail[*models.Datasource](asTaxonomy(err))
	}
	return errs.Ok(ds)
}

// Get returns one datasource by id.
func (s *DatasourceService) Get(ctx context.Context, id string) errs.Envelope[*models.Datasource] {
	ds, err := s.repo.Get(ctx, id)
	if err != nil {
		return errs.Fail[*models.Datasource](asTaxonomy(err))
	}
	return errs.Ok(ds)
}

// Update applies partial changes to a datasource.
func (s *DatasourceService) Update(ctx context.Context, id string, req models.UpdateDatasourceRequest) errs.Envelope[*models.Datasource] {
	ds, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return errs.Fail[*models.Datasource](asTaxonomy(err))
	}
	return errs.Ok(ds)
}

// Delete removes a datasource.
func (s *DatasourceService) Delete(ctx context.Context, id string) errs.Envelope[struct{}] {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errs.Fail[struct{}](asTaxonomy(err))
	}
	return errs.Ok(struct{}{})
}

// TestConnection probes connectivity for a prospective datasource without
// registering it.
func (s *DatasourceService) TestConnection(ctx context.Context, dsType models.DatasourceType, connection map[string]string) errs.Envelope[TestConnectionResult] {
	start := time.Now()
	probe := &models.Datasource{
		ID:         "probe",
		Name:       "probe",
		Type:       dsType,
		Connection: connection,
	}
	a, err := s.registry.New(probe)
	if err != nil {
		return errs.Fail[TestConnectionResult](errs.New(errs.KindValidation, err.Error(), err))
	}
	if err := a.Connect(ctx); err != nil {
		return errs.Ok(TestConnectionResult{
			Success:   false,
			Message:   err.Error(),
			LatencyMS: time.Since(start).Milliseconds(),
		})
	}
	defer func() { _ = a.Disconnect(ctx) }()
	if err := a.Healthy(ctx); err != nil {
		return errs.Ok(TestConnectionResult{
			Success:   false,
			Message:   err.Error(),
			LatencyMS: time.Since(start).Milliseconds(),
		})
	}
	return errs.Ok(TestConnectionResult{
		Success:   true,
		Message:   "connection established",
		LatencyMS: time.Since(start).Milliseconds(),
	})
}

// GetSchema introspects the datasource's schema through the pool.
func (s *DatasourceService) GetSchema(ctx context.Context, datasourceID string) errs.Envelope[*models.SchemaDescriptor] {
	ds, err := s.repo.Get(ctx, datasourceID)
	if err != nil {
		return errs.Fail[*models.SchemaDescriptor](asTaxonomy(err))
	}
	a, err := s.pool.Acquire(ctx, ds)
	if err != nil {
		return errs.Fail[*models.SchemaDescriptor](asTaxonomy(err))
	}
	schema, err := a.Introspect(ctx)
	s.pool.Release(ds, a, err == nil)
	if err != nil {
		return errs.Fail[*models.SchemaDescriptor](asTaxonomy(err))
	}
	return errs.Ok(schema)
}

// ExecuteQuery runs raw SQL against a datasource with explicit bounds.
func (s *DatasourceService) ExecuteQuery(ctx context.Context, datasourceID, sql string, timeout time.Duration, maxRows int) errs.Envelope[*adapter.ExecuteResult] {
	if sql == "" {
		return errs.Fail[*adapter.ExecuteResult](errs.New(errs.KindValidation, "sql is required", nil))
	}
	ds, err := s.repo.Get(ctx, datasourceID)
	if err != nil {
		return errs.Fail[*adapter.ExecuteResult](asTaxonomy(err))
	}
	a, err := s.pool.Acquire(ctx, ds)
	if err != nil {
		return errs.Fail[*adapter.ExecuteResult](asTaxonomy(err))
	}
	result, err := a.Execute(ctx, sql, adapter.ExecuteOptions{Timeout: timeout, MaxRows: maxRows})
	s.pool.Release(ds, a, !errs.As(err, errs.KindDBTransient))
	if err != nil {
		return errs.Fail[*adapter.ExecuteResult](asTaxonomy(err))
	}
	_ = s.repo.TouchLastUsed(ctx, ds.ID)
	return errs.Ok(result)
}
