package agent

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/insightloop/core/pkg/adapter"
	"github.com/insightloop/core/pkg/agent/prompt"
	"github.com/insightloop/core/pkg/models"
)

// schemaCacheTTL bounds how long an introspected SchemaDescriptor is reused
// for a given (datasource, question) pair before re-introspecting.
const schemaCacheTTL = 2 * time.Minute

type schemaCacheEntry struct {
	desc      *models.SchemaDescriptor
	expiresAt time.Time
}

// SchemaAgent resolves the tables of a datasource plausibly relevant to a
// question, ranked by keyword-token overlap with a foreign-key proximity
// boost. The full introspected descriptor is cached per
// (datasource_id, digest(question)); ranking is recomputed on every call.
type SchemaAgent struct {
	runtime *Runtime
	pool    *adapter.Pool
	builder *prompt.Builder

	mu    sync.Mutex
	cache map[string]schemaCacheEntry
}

// NewSchemaAgent builds a SchemaAgent over the given Pool. runtime may be
// nil: Resolve and Rank use only the heuristic ranking and never call it.
func NewSchemaAgent(runtime *Runtime, pool *adapter.Pool, builder *prompt.Builder) *SchemaAgent {
	return &SchemaAgent{runtime: runtime, pool: pool, builder: builder, cache: make(map[string]schemaCacheEntry)}
}

// Resolve returns the full SchemaDescriptor for ds, from cache when fresh.
func (a *SchemaAgent) Resolve(ctx context.Context, ds *models.Datasource) (*models.SchemaDescriptor, error) {
	return a.resolveCached(ctx, ds, "")
}

// Rank returns the SchemaDescriptor for ds filtered to tables plausibly
// relevant to question, ranked by token overlap with a foreign-key
// proximity boost.
func (a *SchemaAgent) Rank(ctx context.Context, ds *models.Datasource, question string) (*models.SchemaDescriptor, error) {
	full, err := a.resolveCached(ctx, ds, question)
	if err != nil {
		return nil, err
	}
	return rankTables(full, question), nil
}

func (a *SchemaAgent) resolveCached(ctx context.Context, ds *models.Datasource, question string) (*models.SchemaDescriptor, error) {
	key := ds.ID + "|" + digest(question)
	a.mu.Lock()
	if entry, ok := a.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		a.mu.Unlock()
		return entry.desc, nil
	}
	a.mu.Unlock()

	conn, err := a.pool.Acquire(ctx, ds)
	if err != nil {
		return nil, err
	}
	desc, err := conn.Introspect(ctx)
	healthy := err == nil
	a.pool.Release(ds, conn, healthy)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[key] = schemaCacheEntry{desc: desc, expiresAt: time.Now().Add(schemaCacheTTL)}
	a.mu.Unlock()
	return desc, nil
}

// rankTables scores each table by keyword-token overlap between its
// name+column names and the question, then boosts tables one foreign-key
// hop away from any table that scored above zero.
func rankTables(full *models.SchemaDescriptor, question string) *models.SchemaDescriptor {
	if question == "" {
		return full
	}
	tokens := tokenize(question)
	scores := make(map[string]int, len(full.Tables))
	for _, t := range full.Tables {
		scores[t.Name] = overlapScore(tokens, t)
	}
	for _, t := range full.Tables {
		if scores[t.Name] > 0 {
			for _, c := range t.Columns {
				if c.ForeignKey != nil {
					scores[c.ForeignKey.Table] += 1
				}
			}
		}
	}

	ranked := make([]models.TableDescriptor, 0, len(full.Tables))
	for _, t := range full.Tables {
		if scores[t.Name] > 0 {
			ranked = append(ranked, t)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].Name] > scores[ranked[j].Name]
	})
	if len(ranked) == 0 {
		ranked = full.Tables
	}
	return &models.SchemaDescriptor{Tables: ranked, Dialect: full.Dialect}
}

func overlapScore(tokens map[string]bool, t models.TableDescriptor) int {
	score := 0
	if tokens[strings.ToLower(t.Name)] {
		score += 3
	}
	for _, c := range t.Columns {
		if tokens[strings.ToLower(c.Name)] {
			score++
		}
	}
	return score
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,?!:;()\"'")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

// digest is a cheap, stable cache-key component for a question string —
// not cryptographic, just deterministic across identical input.
func digest(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), "_"))
}
