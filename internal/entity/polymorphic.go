package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
)

// Polymorphic dispatches on a payload's "object" field to one of several
// underlying writers, for provider fields that can hold one of a fixed set
// of shapes (e.g. a customer's default "source" is either a card or a bank
// account). Each branch is registered once; an object value with no
// matching branch is a schema inconsistency, not a data anomaly, since the
// provider's own object vocabulary is closed and known in advance.
type Polymorphic struct {
	Branches map[string]schemaWriteTree
}

// schemaWriteTree is a local alias to avoid an import cycle: this package
// already implements schema.WriteTree; importing schema back here just to
// name the interface would be circular, so the method set is restated.
type schemaWriteTree interface {
	InsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error)
	UpsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error)
	DeleteTree(ctx context.Context, tx *dbx.Tx, runID int64, providerID string) ([]int64, error)
}

// ErrUnhandledVariant is returned when a polymorphic payload's "object"
// field doesn't match any registered branch.
var ErrUnhandledVariant = fmt.Errorf("entity: unhandled polymorphic variant")

func (p *Polymorphic) branchFor(data []byte) (schemaWriteTree, error) {
	var obj struct {
		Object string `json:"object"`
	}

	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("entity: unmarshal polymorphic payload: %w", err)
	}

	tree, ok := p.Branches[obj.Object]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnhandledVariant, obj.Object)
	}

	return tree, nil
}

// InsertTree implements schema.WriteTree.
func (p *Polymorphic) InsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error) {
	tree, err := p.branchFor(data)
	if err != nil {
		return nil, err
	}

	return tree.InsertTree(ctx, tx, runID, data)
}

// UpsertTree implements schema.WriteTree.
func (p *Polymorphic) UpsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error) {
	tree, err := p.branchFor(data)
	if err != nil {
		return nil, err
	}

	return tree.UpsertTree(ctx, tx, runID, data)
}

// DeleteTree dispatches a delete to every branch, since the polymorphic
// payload is unavailable at delete time (the event carries only the
// provider id) and at most one branch will actually hold a matching row.
func (p *Polymorphic) DeleteTree(ctx context.Context, tx *dbx.Tx, runID int64, providerID string) ([]int64, error) {
	for _, tree := range p.Branches {
		ids, err := tree.DeleteTree(ctx, tx, runID, providerID)
		if err == nil {
			return ids, nil
		}
	}

	return nil, fmt.Errorf("entity: delete polymorphic %s: no branch had a matching row", providerID)
}
