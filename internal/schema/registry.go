// Package schema is the entity/edge registry: for every mirrored provider
// object, the table it lives in, its primary key, the write-log object type
// tag stamped on each row touched, and the foreign-key graph connecting it
// to its parents and children. It is the Go equivalent of the original
// implementation's Db enum and relations module, rebuilt as an explicit
// registry value instead of a compile-time enum, since Go has no sum types
// to lean on here.
package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
)

// Relation names the shape of a foreign-key edge between two tables.
type Relation int

const (
	// ScalarFK is a single foreign key column on the child row pointing at
	// one parent (e.g. charge.customer_id).
	ScalarFK Relation = iota
	// JSONArrayFK is a parent-embedded JSON array of child object ids that
	// this implementation flattens into child rows (e.g. a subscription's
	// items list).
	JSONArrayFK
)

// Edge describes one foreign-key relationship in the registry.
type Edge struct {
	OwnerTable    string
	OwnerIDColumn string
	ChildTable    string
	ChildColumn   string
	Relation      Relation
	// Enforced marks whether a dangling reference on this edge is a data
	// anomaly (true) or merely advisory (false, e.g. archived prices and
	// products the provider still lets old invoices reference).
	Enforced bool
}

// AsChildEdge projects e into the dbx package's dialect-agnostic descriptor,
// used by the shared data-anomaly check.
func (e Edge) AsChildEdge() dbx.ChildEdge {
	return dbx.ChildEdge{
		OwnerTable:    e.OwnerTable,
		OwnerIDColumn: e.OwnerIDColumn,
		ChildTable:    e.ChildTable,
		ChildColumn:   e.ChildColumn,
	}
}

// TableDef describes one entity's storage shape.
type TableDef struct {
	// Name is the SQL table name.
	Name string
	// PKColumn is the table's internal auto-increment primary key.
	PKColumn string
	// ProviderIDColumn is the unique column holding the provider's own
	// object id, the thing events and downloads key off of.
	ProviderIDColumn string
	// WriteLogObjectType is the tag stamped into write_log.object_type for
	// every row touched in this table.
	WriteLogObjectType string
}

// WriteTree is the contract every entity writer implements: map one
// provider object (or an event's data payload) onto row(s) across this
// entity's table and any owned child tables, returning the internal ids of
// every row written so the caller can record them in the write log.
//
// InsertTree is used only from the downloader, where every row is known to
// be new. UpsertTree is used from the event applier, where a row may
// already exist. DeleteTree is used only for true deletes, which for most
// entities never happens directly but is inferred via child-list
// reconciliation instead.
type WriteTree interface {
	InsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error)
	UpsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error)
	DeleteTree(ctx context.Context, tx *dbx.Tx, runID int64, providerID string) ([]int64, error)
}

// ErrUnknownObjectType is returned when a caller asks the registry about an
// entity it has no TableDef or WriteTree registered for.
var ErrUnknownObjectType = errors.New("schema: unknown object type")

// Registry holds every registered entity and the edges between them. It is
// constructed once by NewRegistry and passed down via constructor injection
// rather than kept as a package-level global, so tests can build a smaller
// registry of their own.
type Registry struct {
	tables map[string]TableDef
	trees  map[string]WriteTree
	edges  []Edge
}

// NewRegistry returns an empty registry ready for RegisterEntity calls.
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]TableDef),
		trees:  make(map[string]WriteTree),
	}
}

// RegisterEntity adds one entity's table definition and writer to the
// registry. Called once per entity at startup from internal/entity's
// registration file.
func (r *Registry) RegisterEntity(def TableDef, tree WriteTree) {
	r.tables[def.WriteLogObjectType] = def
	r.trees[def.WriteLogObjectType] = tree
}

// RegisterEdge adds one foreign-key edge to the registry's graph.
func (r *Registry) RegisterEdge(edge Edge) {
	r.edges = append(r.edges, edge)
}

// Table looks up the table definition for a write-log object type.
func (r *Registry) Table(objectType string) (TableDef, error) {
	def, ok := r.tables[objectType]
	if !ok {
		return TableDef{}, fmt.Errorf("%w: %s", ErrUnknownObjectType, objectType)
	}

	return def, nil
}

// WriteTreeFor looks up the writer for a write-log object type.
func (r *Registry) WriteTreeFor(objectType string) (WriteTree, error) {
	tree, ok := r.trees[objectType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObjectType, objectType)
	}

	return tree, nil
}

// Edges returns every edge whose owner table matches table.
func (r *Registry) Edges(ownerTable string) []Edge {
	var out []Edge

	for _, e := range r.edges {
		if e.OwnerTable == ownerTable {
			out = append(out, e)
		}
	}

	return out
}

// AllEdges returns the full edge graph, used by the foreign-key soundness
// check that walks every enforced edge looking for orphans.
func (r *Registry) AllEdges() []Edge {
	return r.edges
}

// IsRegistered reports whether objectType has a writer registered, mirroring
// the original's Db::event_is_table_write: events for object types outside
// this set are skipped before dispatch rather than treated as an error.
func (r *Registry) IsRegistered(objectType string) bool {
	_, ok := r.trees[objectType]

	return ok
}
