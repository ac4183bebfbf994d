package system

import (
	"fmt"
)

// auditlog records admin actions (logins, logouts, deleted messages) on
// the "audit" logger, separate from request logs.
func (s *System) auditlog(format string, i ...interface{}) {
	s.audit.Info(fmt.Sprintf(format, i...))
}
