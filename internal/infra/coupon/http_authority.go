package coupon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"course-platform-payments/internal/config"
	"course-platform-payments/internal/domain/ports/adapter"
)

// HTTPCouponAuthority calls the single authoritative validation rule. This
// service never applies discount arithmetic or touches usage counters
// itself; it only interprets the verdict.
type HTTPCouponAuthority struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

var _ adapter.CouponAuthority = (*HTTPCouponAuthority)(nil)

func NewHTTPCouponAuthority(cfg config.CouponConfig) *HTTPCouponAuthority {
	return &HTTPCouponAuthority{
		baseURL:    cfg.BaseURL,
		serviceKey: cfg.ServiceKey,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type validateRequest struct {
	BuyerID    string `json:"buyer_id"`
	Code       string `json:"code"`
	ProductRef string `json:"product_ref"`
	Price      string `json:"price"`
	Currency   string `json:"currency"`
}

type validateResponse struct {
	OK         bool    `json:"ok"`
	Reason     string  `json:"reason,omitempty"`
	FinalPrice *string `json:"final_price,omitempty"`
}

func (a *HTTPCouponAuthority) Validate(ctx context.Context, buyerID, code, productRef string, price decimal.Decimal, currency string) (adapter.CouponVerdict, error) {
	raw, err := json.Marshal(validateRequest{
		BuyerID:    buyerID,
		Code:       code,
		ProductRef: productRef,
		Price:      price.String(),
		Currency:   currency,
	})
	if err != nil {
		return adapter.CouponVerdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/internal/coupons/validate", bytes.NewReader(raw))
	if err != nil {
		return adapter.CouponVerdict{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return adapter.CouponVerdict{}, fmt.Errorf("coupon authority call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.CouponVerdict{}, fmt.Errorf("coupon authority read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return adapter.CouponVerdict{}, fmt.Errorf("coupon authority: status=%d body=%s", resp.StatusCode, string(body))
	}

	var vr validateResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return adapter.CouponVerdict{}, fmt.Errorf("coupon authority decode: %w", err)
	}

	// An approved verdict must say what to charge. Decoding an absent
	// final_price as zero would turn a lossy response into free access.
	if vr.OK && vr.FinalPrice == nil {
		return adapter.CouponVerdict{}, fmt.Errorf("coupon authority: approved verdict without final_price")
	}

	verdict := adapter.CouponVerdict{OK: vr.OK, Reason: vr.Reason}
	if vr.FinalPrice != nil {
		fp, err := decimal.NewFromString(*vr.FinalPrice)
		if err != nil {
			return adapter.CouponVerdict{}, fmt.Errorf("coupon authority final_price: %w", err)
		}
		verdict.FinalPrice = fp
	}
	return verdict, nil
}
