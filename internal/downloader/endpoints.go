package downloader

import "github.com/tabledog/tdog/internal/scheduler"

// DefaultEndpoints is the flatly-paginated portion of the representative
// entity inventory: every type listable without a parent id in hand.
// Prices (listed twice, active and inactive) and payment methods (listed
// per customer) are handled by prices.go and paymentmethods.go instead.
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{Path: "/products", ObjectType: "product", Priority: scheduler.Medium},
		{Path: "/coupons", ObjectType: "coupon", Priority: scheduler.Medium},
		{Path: "/customers", ObjectType: "customer", Priority: scheduler.Medium},
		{Path: "/subscriptions", ObjectType: "subscription", Priority: scheduler.Medium},
		{Path: "/subscription_schedules", ObjectType: "subscription_schedule", Priority: scheduler.Medium},
		{Path: "/invoices", ObjectType: "invoice", Priority: scheduler.Medium},
		{Path: "/invoiceitems", ObjectType: "invoiceitem", Priority: scheduler.Medium},
		{Path: "/charges", ObjectType: "charge", Priority: scheduler.Medium},
		{Path: "/credit_notes", ObjectType: "credit_note", Priority: scheduler.Medium},
		{Path: "/setup_intents", ObjectType: "setup_intent", Priority: scheduler.Medium},
	}
}
