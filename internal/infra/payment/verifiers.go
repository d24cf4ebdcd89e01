package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"course-platform-payments/internal/domain/ports/adapter"
)

// PayPalWebhookVerifier authenticates notifications through the provider's
// verify-webhook-signature endpoint. Provider-side verification keeps the
// certificate handling out of this service.
type PayPalWebhookVerifier struct {
	gateway   *PayPalGateway
	webhookID string
	log       *zerolog.Logger
}

var _ adapter.WebhookVerifier = (*PayPalWebhookVerifier)(nil)

func NewPayPalWebhookVerifier(gateway *PayPalGateway, webhookID string, logger *zerolog.Logger) *PayPalWebhookVerifier {
	return &PayPalWebhookVerifier{gateway: gateway, webhookID: webhookID, log: logger}
}

func (v *PayPalWebhookVerifier) Verify(ctx context.Context, n adapter.WebhookNotification) bool {
	ok, err := v.gateway.VerifyWebhookSignature(ctx, v.webhookID, n)
	if err != nil {
		// A verification-call failure is treated the same as a bad
		// signature: the notification is ignored and the provider retries.
		v.log.Warn().Err(err).Msg("paypal webhook verification call failed")
		return false
	}
	return ok
}

// MercadoPagoWebhookVerifier checks the x-signature HMAC manifest:
// signature = HMAC-SHA256("id:{data.id};request-id:{x-request-id};ts:{ts};", secret).
type MercadoPagoWebhookVerifier struct {
	secret string
}

var _ adapter.WebhookVerifier = (*MercadoPagoWebhookVerifier)(nil)

func NewMercadoPagoWebhookVerifier(secret string) *MercadoPagoWebhookVerifier {
	return &MercadoPagoWebhookVerifier{secret: secret}
}

func (v *MercadoPagoWebhookVerifier) Verify(ctx context.Context, n adapter.WebhookNotification) bool {
	if v.secret == "" {
		return false
	}

	ts, v1 := parseMercadoPagoSignature(n.Headers["X-Signature"])
	if ts == "" || v1 == "" {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(n.OrderID), n.Headers["X-Request-Id"], ts)

	h := hmac.New(sha256.New, []byte(v.secret))
	h.Write([]byte(manifest))
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}

// parseMercadoPagoSignature splits "ts=...,v1=..." into its parts.
func parseMercadoPagoSignature(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	return ts, v1
}
