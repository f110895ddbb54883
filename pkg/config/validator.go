package config

import (
	"fmt"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/planning"
)

var knownDatasourceTypes = map[models.DatasourceType]bool{
	models.DatasourcePostgres:   true,
	models.DatasourceMySQL:      true,
	models.DatasourceMSSQL:      true,
	models.DatasourceClickHouse: true,
	models.DatasourceDuckDB:     true,
	models.DatasourceSQLite:     true,
	models.DatasourceSnowflake:  true,
	models.DatasourceBigQuery:   true,
	models.DatasourceTrino:      true,
}

var knownOperators = map[models.Operator]bool{
	models.OpGT: true, models.OpGTE: true, models.OpLT: true, models.OpLTE: true, models.OpEQ: true,
}

// validate checks cross-cutting invariants the YAML schema alone cannot
// express: unique names, at most one default, and referential integrity
// between rules, chains, profiles, and bindings.
func validate(cfg *Config) error {
	if err := validateDatasources(cfg.Datasources); err != nil {
		return err
	}
	if err := validateBindings(cfg); err != nil {
		return err
	}
	if err := validatePlanning(cfg); err != nil {
		return err
	}
	return validateMonitorRules(cfg)
}

func validateDatasources(datasources []models.Datasource) error {
	names := make(map[string]bool, len(datasources))
	defaults := 0
	for _, ds := range datasources {
		if ds.Name == "" {
			return errs.NewValidationError("datasources", "datasource name is required")
		}
		if names[ds.Name] {
			return errs.NewValidationError("datasources", fmt.Sprintf("duplicate datasource name %q", ds.Name))
		}
		names[ds.Name] = true
		if !knownDatasourceTypes[ds.Type] {
			return errs.NewValidationError("datasources", fmt.Sprintf("datasource %q has unknown type %q", ds.Name, ds.Type))
		}
		if ds.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return errs.NewValidationError("datasources", "at most one datasource may be marked default")
	}
	return nil
}

func validateBindings(cfg *Config) error {
	defaults := 0
	for id, b := range cfg.LLMBindings {
		if b.Model == "" {
			return errs.NewValidationError("llm_bindings", fmt.Sprintf("binding %q has no model", id))
		}
		if b.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return errs.NewValidationError("llm_bindings", "at most one binding may be marked default")
	}
	for id, p := range cfg.AgentProfiles {
		if p.LLMBindingID == "" {
			continue
		}
		if _, ok := cfg.LLMBindings[p.LLMBindingID]; !ok {
			return errs.NewValidationError("agent_profiles",
				fmt.Sprintf("profile %q references unknown binding %q", id, p.LLMBindingID))
		}
	}
	return nil
}

func validatePlanning(cfg *Config) error {
	chains := cfg.ChainRegistry.GetAll()
	for id, chain := range chains {
		if len(chain.Nodes) == 0 {
			return errs.NewValidationError("chains", fmt.Sprintf("chain %q has no nodes", id))
		}
		nodeIDs := make(map[string]bool, len(chain.Nodes))
		for _, n := range chain.Nodes {
			if n.NodeID == "" {
				return errs.NewValidationError("chains", fmt.Sprintf("chain %q has a node without node_id", id))
			}
			if nodeIDs[n.NodeID] {
				return errs.NewValidationError("chains", fmt.Sprintf("chain %q has duplicate node %q", id, n.NodeID))
			}
			nodeIDs[n.NodeID] = true
			if len(n.AssignedAgents) == 0 {
				return errs.NewValidationError("chains", fmt.Sprintf("chain %q node %q has no assigned agent", id, n.NodeID))
			}
		}
		for _, n := range chain.Nodes {
			for _, dep := range n.DependsOn {
				if !nodeIDs[dep] {
					return errs.NewValidationError("chains",
						fmt.Sprintf("chain %q node %q depends on unknown node %q", id, n.NodeID, dep))
				}
			}
		}
		if hasCycle(chain.Nodes) {
			return errs.NewValidationError("chains", fmt.Sprintf("chain %q has a dependency cycle", id))
		}
	}
	for _, rule := range cfg.PlanningRuleRegistry.All() {
		if _, ok := chains[rule.ChainID]; !ok {
			return errs.NewValidationError("planning_rules",
				fmt.Sprintf("rule %q references unknown chain %q", rule.ID, rule.ChainID))
		}
	}
	return nil
}

// hasCycle runs Kahn's algorithm over the node dependency graph; any node
// left unprocessed sits on a cycle.
func hasCycle(nodes []planning.ChainNode) bool {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n.NodeID] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], n.NodeID)
		}
	}
	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return processed != len(nodes)
}

func validateMonitorRules(cfg *Config) error {
	ids := make(map[string]bool)
	for _, r := range cfg.MonitorRuleRegistry.All() {
		if r.ID == "" || r.MetricKey == "" {
			return errs.NewValidationError("monitor_rules", "monitor rule id and metric_key are required")
		}
		if ids[r.ID] {
			return errs.NewValidationError("monitor_rules", fmt.Sprintf("duplicate monitor rule id %q", r.ID))
		}
		ids[r.ID] = true
		if !knownOperators[r.Operator] {
			return errs.NewValidationError("monitor_rules", fmt.Sprintf("rule %q has unknown operator %q", r.ID, r.Operator))
		}
	}
	return nil
}
