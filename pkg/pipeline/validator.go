package pipeline

import (
	"regexp"
	"strings"

	"github.com/insightloop/core/pkg/errs"
)

var writeKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|merge)\b`)

// statementSplit is a conservative multi-statement detector: a semicolon
// followed by anything but whitespace/end-of-string. Doesn't attempt to
// understand string-literal-embedded semicolons — good enough to reject the
// common "; DROP TABLE" injection shape without a full SQL parser, which is
// explicitly out of scope.
var statementSplit = regexp.MustCompile(`;\s*\S`)

// ValidateSQL applies the pre-execution checks: reject multi-statement input,
// reject writes when the scene is read-only, and require the draft to look
// like a query at all. It does not validate dialect-specific syntax beyond
// this — true parsing is left to the adapter's Execute call, which surfaces
// SQL_ERROR on an actual syntax failure.
func ValidateSQL(sql string, readOnly bool) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return errs.NewValidationError("sql", "draft SQL is empty")
	}
	if statementSplit.MatchString(trimmed) {
		return errs.NewValidationError("sql", "multi-statement SQL is not allowed")
	}
	if readOnly && writeKeywords.MatchString(trimmed) {
		return errs.NewValidationError("sql", "write statements are not allowed in a read-only scene")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return errs.NewValidationError("sql", "draft SQL must be a SELECT or WITH query")
	}
	return nil
}
