package adapter

import (
	"context"

	"course-platform-payments/internal/domain/intent"
)

// EntitlementService grants the business effect of a successful payment.
// Both operations are required to be idempotent for identical arguments:
// a created -> approved transition happens exactly once, but the process
// around it may be retried at the infrastructure level.
type EntitlementService interface {
	GrantCourseAccess(ctx context.Context, buyerID, courseRef string, months int) error
	ActivateSubscription(ctx context.Context, organizationID, planRef string, period intent.BillingPeriod) error
}
