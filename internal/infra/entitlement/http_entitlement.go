package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"course-platform-payments/internal/config"
	"course-platform-payments/internal/domain/intent"
	"course-platform-payments/internal/domain/ports/adapter"
)

// HTTPEntitlementService calls the platform API to grant course access and
// activate subscriptions. The platform side keys grants on
// (buyer, product) and (organization, plan), so repeated calls with
// identical arguments no-op. That is the idempotency this port requires.
type HTTPEntitlementService struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

var _ adapter.EntitlementService = (*HTTPEntitlementService)(nil)

func NewHTTPEntitlementService(cfg config.EntitlementConfig) *HTTPEntitlementService {
	return &HTTPEntitlementService{
		baseURL:    cfg.BaseURL,
		serviceKey: cfg.ServiceKey,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPEntitlementService) GrantCourseAccess(ctx context.Context, buyerID, courseRef string, months int) error {
	return s.post(ctx, "/internal/enrollments", map[string]interface{}{
		"user_id":     buyerID,
		"course_slug": courseRef,
		"months":      months,
	})
}

func (s *HTTPEntitlementService) ActivateSubscription(ctx context.Context, organizationID, planRef string, period intent.BillingPeriod) error {
	return s.post(ctx, "/internal/subscriptions", map[string]interface{}{
		"organization_id": organizationID,
		"plan_slug":       planRef,
		"billing_period":  string(period),
	})
}

func (s *HTTPEntitlementService) post(ctx context.Context, path string, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("entitlement call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("entitlement call %s: status=%d body=%s", path, resp.StatusCode, string(body))
	}
	return nil
}
