package services

import (
	"github.com/insightloop/core/pkg/monitor"
)

// Services is the explicit wiring aggregate handed down from startup.
// Every public operation the engine exposes hangs off one of these;
// there are no package-level singletons besides the adapter pool.
type Services struct {
	Datasources *DatasourceService
	Analysis    *AnalysisService
	Executions  *ExecutionService
	Config      *ConfigService
	Bindings    *BindingService
	Monitor     *monitor.Loop
}
