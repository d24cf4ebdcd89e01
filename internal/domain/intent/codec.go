// Package intent encodes and decodes purchase intent through the two
// free-text fields a provider order carries opaquely (invoice id and
// custom id). Both grammars are pipe-delimited; pipes never occur in the
// embedded ids/slugs, which the catalog layer enforces.
package intent

import (
	"fmt"
	"strconv"
	"strings"
)

type ProductType string

const (
	ProductTypeUnknown      ProductType = ""
	ProductTypeCourse       ProductType = "course"
	ProductTypeSubscription ProductType = "subscription"
)

type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodAnnual  BillingPeriod = "annual"
)

// DefaultCourseMonths is the access duration granted when a course intent
// does not carry one.
const DefaultCourseMonths = 12

// PurchaseIntent is what the buyer set out to purchase. It is reconstructed
// from provider identifiers during reconciliation and never persisted as its
// own row; ProductType determines which other fields are meaningful.
type PurchaseIntent struct {
	BuyerID        string
	ProductType    ProductType
	ProductRef     string // course slug or plan slug
	Months         int    // course access duration
	OrganizationID string // subscription only
	PlanRef        string // subscription only
	BillingPeriod  BillingPeriod
	CouponCode     string
	CouponID       string
}

// EncodeInvoiceID produces the compact invoice-id grammar:
// "subscription|{orgID}|{planRef}|{period}" or "course|{buyerID}|{ref}|{months}".
func EncodeInvoiceID(in PurchaseIntent) string {
	if in.ProductType == ProductTypeSubscription {
		return strings.Join([]string{
			string(ProductTypeSubscription), in.OrganizationID, in.PlanRef, string(in.BillingPeriod),
		}, "|")
	}
	months := in.Months
	if months <= 0 {
		months = DefaultCourseMonths
	}
	return strings.Join([]string{
		string(ProductTypeCourse), in.BuyerID, in.ProductRef, strconv.Itoa(months),
	}, "|")
}

// EncodeCustomID produces the fixed 9-field positional grammar. Absent
// fields serialize as empty strings so positions stay stable.
func EncodeCustomID(in PurchaseIntent) string {
	months := ""
	if in.Months > 0 {
		months = strconv.Itoa(in.Months)
	}
	return strings.Join([]string{
		in.BuyerID,
		string(in.ProductType),
		in.ProductRef,
		months,
		in.OrganizationID,
		in.PlanRef,
		string(in.BillingPeriod),
		in.CouponCode,
		in.CouponID,
	}, "|")
}

// DecodeInvoiceID parses the invoice-id grammar. It never fails: an
// unrecognized leading tag or malformed input yields ProductTypeUnknown and
// the caller must treat the intent as unprocessable.
func DecodeInvoiceID(s string) PurchaseIntent {
	parts := strings.Split(s, "|")
	switch ProductType(parts[0]) {
	case ProductTypeSubscription:
		in := PurchaseIntent{ProductType: ProductTypeSubscription}
		if len(parts) > 1 {
			in.OrganizationID = parts[1]
		}
		if len(parts) > 2 {
			in.PlanRef = parts[2]
			in.ProductRef = parts[2]
		}
		if len(parts) > 3 {
			in.BillingPeriod = parseBillingPeriod(parts[3])
		}
		return in
	case ProductTypeCourse:
		in := PurchaseIntent{ProductType: ProductTypeCourse, Months: DefaultCourseMonths}
		if len(parts) > 1 {
			in.BuyerID = parts[1]
		}
		if len(parts) > 2 {
			in.ProductRef = parts[2]
		}
		if len(parts) > 3 {
			if m, err := strconv.Atoi(parts[3]); err == nil && m > 0 {
				in.Months = m
			}
		}
		return in
	default:
		return PurchaseIntent{ProductType: ProductTypeUnknown}
	}
}

// DecodeCustomID parses the 9-field positional grammar. Short input leaves
// trailing fields at their zero values; it never fails.
func DecodeCustomID(s string) PurchaseIntent {
	parts := strings.Split(s, "|")
	at := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	in := PurchaseIntent{
		BuyerID:        at(0),
		ProductType:    parseProductType(at(1)),
		ProductRef:     at(2),
		OrganizationID: at(4),
		PlanRef:        at(5),
		BillingPeriod:  parseBillingPeriod(at(6)),
		CouponCode:     at(7),
		CouponID:       at(8),
	}
	if m, err := strconv.Atoi(at(3)); err == nil && m > 0 {
		in.Months = m
	}
	return in
}

func (in PurchaseIntent) String() string {
	return fmt.Sprintf("intent{%s buyer=%s ref=%s}", in.ProductType, in.BuyerID, in.ProductRef)
}

func parseProductType(s string) ProductType {
	switch ProductType(s) {
	case ProductTypeCourse, ProductTypeSubscription:
		return ProductType(s)
	default:
		return ProductTypeUnknown
	}
}

func parseBillingPeriod(s string) BillingPeriod {
	switch BillingPeriod(s) {
	case BillingPeriodMonthly, BillingPeriodAnnual:
		return BillingPeriod(s)
	default:
		return ""
	}
}
