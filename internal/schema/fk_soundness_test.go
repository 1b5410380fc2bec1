package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEnforcedEdgesHaveChildColumn guards against a registration mistake
// that would make GetMissingChildren build a meaningless query: every
// enforced edge must name the column on the child table that carries the
// parent reference.
func TestEnforcedEdgesHaveChildColumn(t *testing.T) {
	r := NewRegistry()
	r.RegisterEdge(Edge{
		OwnerTable:    "subscriptions",
		OwnerIDColumn: "subscription_id",
		ChildTable:    "subscription_items",
		ChildColumn:   "id",
		Relation:      JSONArrayFK,
		Enforced:      true,
	})
	r.RegisterEdge(Edge{
		OwnerTable: "products",
		ChildTable: "prices",
		Relation:   ScalarFK,
		Enforced:   false,
	})

	for _, e := range r.AllEdges() {
		if !e.Enforced {
			continue
		}

		assert.NotEmpty(t, e.OwnerIDColumn, "enforced edge %s->%s missing owner id column", e.OwnerTable, e.ChildTable)
		assert.NotEmpty(t, e.ChildColumn, "enforced edge %s->%s missing child column", e.OwnerTable, e.ChildTable)
	}
}

func TestAsChildEdgeProjection(t *testing.T) {
	e := Edge{
		OwnerTable:    "customers",
		OwnerIDColumn: "customer_id",
		ChildTable:    "charges",
		ChildColumn:   "customer_id",
	}

	ce := e.AsChildEdge()

	assert.Equal(t, e.OwnerTable, ce.OwnerTable)
	assert.Equal(t, e.ChildTable, ce.ChildTable)
}
