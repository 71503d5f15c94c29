package schema

import (
	"strings"

	"caribou/internal/constants"
)

// Name derives the storage namespace for a tenant. The result is a stable,
// lowercase postgres identifier: anything outside [a-z0-9_] collapses to an
// underscore.
func Name(tenantID string) string {
	var b strings.Builder
	b.WriteString(constants.TenantSchemaPrefix)

	for _, r := range strings.ToLower(tenantID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
