package sqlgen

import (
	"fmt"
	"strings"

	"github.com/sidv1711/slack-bot/pkg/service"
)

var (
	forbiddenKeywords = []string{
		"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "CREATE",
		"TRUNCATE", "EXEC", "EXECUTE", "MERGE", "UNION",
	}
	commentMarkers = []string{"--", "/*", "*/"}
)

// ValidateSQL is the gate every generated statement passes before it is
// executed. The statement must start with SELECT, mention table, and contain
// no forbidden keyword as a whole word and no comment marker at all.
//
// This is a keyword denylist, not a parser: a statement can still read from
// a second table whose name contains table, or call a function with side
// effects. The executor's read-only transaction is the backstop.
func ValidateSQL(sql, table string) error {
	trimmed := strings.TrimSpace(sql)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return fmt.Errorf("%w: query must start with SELECT", service.ErrSafetyValidationFailed)
	}
	if !strings.Contains(strings.ToLower(sql), strings.ToLower(table)) {
		return fmt.Errorf("%w: query must reference table %s", service.ErrSafetyValidationFailed, table)
	}

	check := strings.ToUpper(strings.TrimRight(sql, ";"))
	for _, marker := range commentMarkers {
		if strings.Contains(check, marker) {
			return fmt.Errorf("%w: query contains forbidden token %q", service.ErrSafetyValidationFailed, marker)
		}
	}
	if kw, found := service.FirstWord(check, forbiddenKeywords); found {
		return fmt.Errorf("%w: query contains forbidden keyword %q", service.ErrSafetyValidationFailed, kw)
	}
	return nil
}
