package adapter

import (
	"fmt"
)

// kvDSNSpec describes how to assemble a printf-style DSN from a Datasource's
// opaque connection map, shared by the handful of engines that take
// key=value-shaped DSNs (postgres, mysql, mssql) rather than a single URI.
type kvDSNSpec struct {
	template string
	fields   []string
	defaults map[string]string
	required []string
}

func buildKVDSN(conn map[string]string, spec kvDSNSpec) (string, error) {
	for _, f := range spec.required {
		if conn[f] == "" {
			return "", fmt.Errorf("connection field %q is required", f)
		}
	}
	values := make([]any, len(spec.fields))
	for i, f := range spec.fields {
		v := conn[f]
		if v == "" {
			v = spec.defaults[f]
		}
		values[i] = v
	}
	return fmt.Sprintf(spec.template, values...), nil
}

// requireField reports a connection field missing with a consistent error.
func requireField(conn map[string]string, field string) (string, error) {
	v, ok := conn[field]
	if !ok || v == "" {
		return "", fmt.Errorf("connection field %q is required", field)
	}
	return v, nil
}
