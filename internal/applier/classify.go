package applier

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// deleteExceptions lists `*.deleted` event types that are semantically
// non-destructive: the underlying row keeps existing, only a status field
// or an association changes. Verbatim from the original implementation's
// is_delete (providers/stripe/apply_events.rs) — each comment there states
// exactly why the exception exists.
var deleteExceptions = map[string]bool{
	// "The source is no longer attached to the customer", not "the source
	// has been deleted". customer.updated fires first and nulls
	// default_source; this event only detaches it.
	"customer.source.deleted": true,
	// Fired when a subscription's lifetime ends; the row's status moves to
	// "cancelled" rather than being removed, so history stays queryable.
	"customer.subscription.deleted": true,
	// A customer-owned discount is cleared via the customer's own
	// discount_id, not a delete of the discount row.
	"customer.discount.deleted": true,
	// Coupons carry a valid flag; the row itself is immutable history.
	"coupon.deleted": true,
}

// isDelete reports whether eventType represents a real row delete, as
// opposed to an upsert disguised as a ".deleted" event by the provider's
// naming.
//
// A ".deleted" type with more than two dot-separated segments
// (customer.source.deleted, customer.discount.deleted, ...) is usually a
// detach-style event rather than a genuine delete; deleteExceptions
// captures the ones known today. An unrecognized multi-segment type is
// treated conservatively as an update rather than a delete, logging a
// warning, since silently deleting rows on an unverified assumption is
// worse than leaving a stale row behind.
func isDelete(eventType string, logger *slog.Logger) bool {
	if !strings.HasSuffix(eventType, ".deleted") {
		return false
	}

	if deleteExceptions[eventType] {
		return false
	}

	if strings.Count(eventType, ".") > 1 {
		if logger == nil {
			logger = slog.Default()
		}

		logger.Warn("unrecognized multi-segment .deleted event, applying as update",
			slog.String("event_type", eventType))

		return false
	}

	return true
}

// objectType extracts the Stripe-style "object" discriminator field from
// one event's embedded data payload, the key the schema.Registry is keyed
// by.
func objectType(data json.RawMessage) string {
	var obj struct {
		Object string `json:"object"`
	}

	_ = json.Unmarshal(data, &obj)

	return obj.Object
}

// providerID extracts the "id" field from one event's embedded data
// payload, needed for DeleteTree calls which take a provider id rather
// than a full payload.
func providerID(data json.RawMessage) string {
	var obj struct {
		ID string `json:"id"`
	}

	_ = json.Unmarshal(data, &obj)

	return obj.ID
}
