package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
)

// ConfigDatasourceRepository serves datasources declared in the YAML
// configuration from memory. It backs database-less deployments; durable
// installs use the database package's store instead. Mutations affect only
// the in-memory view and are lost on restart.
type ConfigDatasourceRepository struct {
	mu   sync.Mutex
	byID map[string]*models.Datasource
}

// NewConfigDatasourceRepository seeds a repository from configuration.
// Datasources without an id get one assigned.
func NewConfigDatasourceRepository(seed []models.Datasource) *ConfigDatasourceRepository {
	r := &ConfigDatasourceRepository{byID: make(map[string]*models.Datasource, len(seed))}
	for i := range seed {
		ds := seed[i]
		if ds.ID == "" {
			ds.ID = uuid.New().String()
		}
		if ds.Status == "" {
			ds.Status = models.DatasourceStatusActive
		}
		r.byID[ds.ID] = &ds
	}
	return r
}

// Create registers a datasource in memory.
func (r *ConfigDatasourceRepository) Create(_ context.Context, req models.CreateDatasourceRequest) (*models.Datasource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ds := range r.byID {
		if ds.Name == req.Name {
			return nil, errs.New(errs.KindConflict, "datasource name already exists: "+req.Name, nil)
		}
	}
	if req.IsDefault {
		for _, ds := range r.byID {
			ds.IsDefault = false
		}
	}
	ds := &models.Datasource{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Type:       req.Type,
		Connection: req.Connection,
		Status:     models.DatasourceStatusActive,
		IsDefault:  req.IsDefault,
		UpdatedAt:  time.Now().UTC(),
	}
	r.byID[ds.ID] = ds
	cp := *ds
	return &cp, nil
}

// Get returns the datasource with the given id.
func (r *ConfigDatasourceRepository) Get(_ context.Context, id string) (*models.Datasource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.byID[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "datasource not found: "+id, nil)
	}
	cp := *ds
	return &cp, nil
}

// GetDefault returns the datasource marked default.
func (r *ConfigDatasourceRepository) GetDefault(context.Context) (*models.Datasource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ds := range r.byID {
		if ds.IsDefault {
			cp := *ds
			return &cp, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "no default datasource configured", nil)
}

// Resolve satisfies the pipeline's datasource lookup.
func (r *ConfigDatasourceRepository) Resolve(ctx context.Context, datasourceID string) (*models.Datasource, error) {
	return r.Get(ctx, datasourceID)
}

// List returns every datasource.
func (r *ConfigDatasourceRepository) List(context.Context) ([]models.Datasource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Datasource, 0, len(r.byID))
	for _, ds := range r.byID {
		out = append(out, *ds)
	}
	return out, nil
}

// Update applies partial changes in memory.
func (r *ConfigDatasourceRepository) Update(_ context.Context, id string, req models.UpdateDatasourceRequest) (*models.Datasource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.byID[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "datasource not found: "+id, nil)
	}
	if req.IsDefault != nil && *req.IsDefault {
		for _, other := range r.byID {
			other.IsDefault = false
		}
	}
	if req.Name != nil {
		ds.Name = *req.Name
	}
	if req.Connection != nil {
		ds.Connection = *req.Connection
	}
	if req.Status != nil {
		ds.Status = *req.Status
	}
	if req.IsDefault != nil {
		ds.IsDefault = *req.IsDefault
	}
	ds.UpdatedAt = time.Now().UTC()
	cp := *ds
	return &cp, nil
}

// Delete removes a datasource from memory.
func (r *ConfigDatasourceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return errs.New(errs.KindNotFound, "datasource not found: "+id, nil)
	}
	delete(r.byID, id)
	return nil
}

// TouchLastUsed bumps last_used_at.
func (r *ConfigDatasourceRepository) TouchLastUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds, ok := r.byID[id]; ok {
		now := time.Now().UTC()
		ds.LastUsedAt = &now
	}
	return nil
}
