package integration

import (
	"context"

	"caribou/internal/logger"
	"caribou/internal/tenant"
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func tenantContext(tenantID string) context.Context {
	return tenant.WithTenantID(context.Background(), tenantID)
}
