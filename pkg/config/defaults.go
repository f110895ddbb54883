package config

// builtinDefaults returns the documented default for every tuning knob.
// User-supplied values override these field-by-field during merge.
func builtinDefaults() *Defaults {
	d := &Defaults{}
	d.Pool.MaxTotal = 50
	d.Pool.MaxPerDatasource = 10
	d.Pool.AcquireTimeoutMS = 5000
	d.Pool.HealthIntervalMS = 30000
	d.Analyze.MaxCorrectionAttempts = 3
	d.Analyze.EndToEndTimeoutMS = 120000
	d.Monitoring.TickIntervalMS = 60000
	d.Monitoring.SuppressionMS = 900000
	d.Execution.MaxAttemptsPerTask = 3
	d.Execution.StepCap = 30
	d.Memory.MaxEvents = 50000
	return d
}
