package entitlement

import (
	"context"

	"github.com/rs/zerolog"

	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/ports/adapter"
)

// NoopEntitlementService logs grants instead of performing them. Used in dev
// mode when no platform API is reachable.
type NoopEntitlementService struct {
	log *zerolog.Logger
}

var _ adapter.EntitlementService = (*NoopEntitlementService)(nil)

func NewNoopEntitlementService(logger *zerolog.Logger) *NoopEntitlementService {
	return &NoopEntitlementService{log: logger}
}

func (s *NoopEntitlementService) GrantCourseAccess(ctx context.Context, buyerID, courseRef string, months int) error {
	s.log.Info().Str("buyer", buyerID).Str("course", courseRef).Int("months", months).Msg("noop: grant course access")
	return nil
}

func (s *NoopEntitlementService) ActivateSubscription(ctx context.Context, organizationID, planRef string, period intent.BillingPeriod) error {
	s.log.Info().Str("organization", organizationID).Str("plan", planRef).Str("period", string(period)).Msg("noop: activate subscription")
	return nil
}
