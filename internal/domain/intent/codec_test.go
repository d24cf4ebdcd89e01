package intent

import "testing"

func TestEncodeInvoiceID(t *testing.T) {
	t.Run("subscription grammar", func(t *testing.T) {
		got := EncodeInvoiceID(PurchaseIntent{
			ProductType:    ProductTypeSubscription,
			OrganizationID: "org-1",
			PlanRef:        "team-pro",
			BillingPeriod:  BillingPeriodAnnual,
		})
		want := "subscription|org-1|team-pro|annual"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("course grammar", func(t *testing.T) {
		got := EncodeInvoiceID(PurchaseIntent{
			ProductType: ProductTypeCourse,
			BuyerID:     "buyer-9",
			ProductRef:  "go-basics",
			Months:      6,
		})
		want := "course|buyer-9|go-basics|6"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("course months default to 12 when unset", func(t *testing.T) {
		got := EncodeInvoiceID(PurchaseIntent{
			ProductType: ProductTypeCourse,
			BuyerID:     "buyer-9",
			ProductRef:  "go-basics",
		})
		want := "course|buyer-9|go-basics|12"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}

func TestDecodeInvoiceID(t *testing.T) {
	t.Run("round-trips a subscription intent", func(t *testing.T) {
		in := PurchaseIntent{
			ProductType:    ProductTypeSubscription,
			OrganizationID: "org-1",
			PlanRef:        "team-pro",
			BillingPeriod:  BillingPeriodMonthly,
		}
		out := DecodeInvoiceID(EncodeInvoiceID(in))
		if out.ProductType != ProductTypeSubscription {
			t.Fatalf("expected subscription, got %q", out.ProductType)
		}
		if out.OrganizationID != "org-1" || out.PlanRef != "team-pro" {
			t.Errorf("organization/plan lost in round-trip: %+v", out)
		}
		if out.BillingPeriod != BillingPeriodMonthly {
			t.Errorf("expected monthly billing period, got %q", out.BillingPeriod)
		}
	})

	t.Run("round-trips a course intent", func(t *testing.T) {
		in := PurchaseIntent{
			ProductType: ProductTypeCourse,
			BuyerID:     "buyer-9",
			ProductRef:  "go-basics",
			Months:      3,
		}
		out := DecodeInvoiceID(EncodeInvoiceID(in))
		if out.BuyerID != "buyer-9" || out.ProductRef != "go-basics" || out.Months != 3 {
			t.Errorf("course fields lost in round-trip: %+v", out)
		}
	})

	t.Run("unknown tag yields unknown product type", func(t *testing.T) {
		for _, s := range []string{"", "refund|x|y|z", "courses|a|b|1", "random text"} {
			out := DecodeInvoiceID(s)
			if out.ProductType != ProductTypeUnknown {
				t.Errorf("input %q: expected unknown product type, got %q", s, out.ProductType)
			}
		}
	})

	t.Run("malformed months fall back to default", func(t *testing.T) {
		out := DecodeInvoiceID("course|buyer-9|go-basics|soon")
		if out.Months != DefaultCourseMonths {
			t.Errorf("expected %d months, got %d", DefaultCourseMonths, out.Months)
		}
	})

	t.Run("truncated input never panics", func(t *testing.T) {
		out := DecodeInvoiceID("subscription|org-1")
		if out.ProductType != ProductTypeSubscription || out.OrganizationID != "org-1" {
			t.Errorf("unexpected decode of truncated input: %+v", out)
		}
		if out.PlanRef != "" || out.BillingPeriod != "" {
			t.Errorf("missing fields should stay zero: %+v", out)
		}
	})
}

func TestDecodeCustomID(t *testing.T) {
	t.Run("round-trips all nine fields", func(t *testing.T) {
		in := PurchaseIntent{
			BuyerID:        "buyer-9",
			ProductType:    ProductTypeSubscription,
			ProductRef:     "team-pro",
			OrganizationID: "org-1",
			PlanRef:        "team-pro",
			BillingPeriod:  BillingPeriodAnnual,
			CouponCode:     "SAVE10",
			CouponID:       "c-77",
		}
		out := DecodeCustomID(EncodeCustomID(in))
		if out != in {
			t.Errorf("round-trip mismatch:\n in: %+v\nout: %+v", in, out)
		}
	})

	t.Run("short input leaves trailing fields zero", func(t *testing.T) {
		out := DecodeCustomID("buyer-9|course|go-basics")
		if out.BuyerID != "buyer-9" || out.ProductType != ProductTypeCourse || out.ProductRef != "go-basics" {
			t.Errorf("leading fields lost: %+v", out)
		}
		if out.CouponCode != "" || out.Months != 0 {
			t.Errorf("trailing fields should stay zero: %+v", out)
		}
	})

	t.Run("invalid product type decodes as unknown", func(t *testing.T) {
		out := DecodeCustomID("buyer-9|bundle|go-basics|12||||SAVE10|")
		if out.ProductType != ProductTypeUnknown {
			t.Errorf("expected unknown product type, got %q", out.ProductType)
		}
	})

	t.Run("empty string decodes without panic", func(t *testing.T) {
		out := DecodeCustomID("")
		if out.ProductType != ProductTypeUnknown {
			t.Errorf("expected unknown product type, got %q", out.ProductType)
		}
	})
}
