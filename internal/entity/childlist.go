package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tabledog/tdog/internal/dbx"
)

// ChildList is a schema.WriteTree for a parent entity whose provider object
// embeds a bounded, full-replace array of child objects (e.g. a
// subscription's "items.data", a customer's "tax_ids.data"). Unlike
// UnboundedChild, a ChildList always sees the complete set of children on
// every write, so an element missing from the array is a delete, applied
// via ReconcileChildren.
type ChildList struct {
	Parent *Simple

	// ArrayPath is a dot-separated path into the parent's JSON object
	// locating the child array, e.g. "items.data".
	ArrayPath string

	ChildTable            string
	ChildColumn           string // FK column on the child row pointing at the parent's internal id
	ChildProviderIDColumn string
	ChildDataColumn       string

	// ChildWriteLogObjectType is the write log's obj_type for rows
	// ReconcileChildren removes from this list, e.g. "subscription_item".
	// Falls back to ChildTable when unset, for entities that never bothered
	// naming a distinct provider object type for their child rows.
	ChildWriteLogObjectType string
}

func (c *ChildList) writeLogObjectType() string {
	if c.ChildWriteLogObjectType != "" {
		return c.ChildWriteLogObjectType
	}

	return c.ChildTable
}

func navigate(data []byte, path string) ([]json.RawMessage, error) {
	var obj map[string]any

	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("entity: unmarshal: %w", err)
	}

	var cur any = obj

	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}

		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, nil
		}
	}

	arr, ok := cur.([]any)
	if !ok {
		return nil, nil
	}

	out := make([]json.RawMessage, 0, len(arr))

	for _, el := range arr {
		raw, err := json.Marshal(el)
		if err != nil {
			return nil, fmt.Errorf("entity: re-marshal child element: %w", err)
		}

		out = append(out, raw)
	}

	return out, nil
}

func (c *ChildList) writeChild(ctx context.Context, tx *dbx.Tx, parentID int64, childData []byte) (int64, error) {
	providerID, err := extractProviderID(childData)
	if err != nil {
		return 0, err
	}

	updateQuery := fmt.Sprintf(`UPDATE %s SET %s = %s, %s = %s WHERE %s = %s`,
		c.ChildTable, c.ChildDataColumn, tx.PlaceholdersFrom(1, 1),
		c.ChildColumn, tx.PlaceholdersFrom(2, 1),
		c.ChildProviderIDColumn, tx.PlaceholdersFrom(3, 1))

	affected, err := tx.Update(ctx, updateQuery, string(childData), parentID, providerID)
	if err != nil {
		return 0, fmt.Errorf("entity: update child %s: %w", c.ChildTable, err)
	}

	if affected > 0 {
		return lookupInternalID(ctx, tx, c.ChildTable, c.ChildProviderIDColumn, providerID)
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES (%s)`,
		c.ChildTable, c.ChildProviderIDColumn, c.ChildColumn, c.ChildDataColumn, tx.Placeholders(3))

	id, err := insertReturningID(ctx, tx, c.ChildTable, insertQuery, []any{providerID, parentID, string(childData)})
	if err != nil {
		return 0, fmt.Errorf("entity: insert child %s: %w", c.ChildTable, err)
	}

	return id, nil
}

// InsertTree implements schema.WriteTree.
func (c *ChildList) InsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error) {
	parentIDs, err := c.Parent.InsertTree(ctx, tx, runID, data)
	if err != nil {
		return nil, err
	}

	parentID := parentIDs[0]

	children, err := navigate(data, c.ArrayPath)
	if err != nil {
		return nil, err
	}

	ids := []int64{parentID}

	for _, child := range children {
		childID, err := c.writeChild(ctx, tx, parentID, child)
		if err != nil {
			return nil, err
		}

		ids = append(ids, childID)
	}

	return ids, nil
}

// UpsertTree implements schema.WriteTree, reconciling the child set to
// exactly what the current array contains.
func (c *ChildList) UpsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error) {
	parentIDs, err := c.Parent.UpsertTree(ctx, tx, runID, data)
	if err != nil {
		return nil, err
	}

	parentID := parentIDs[0]

	children, err := navigate(data, c.ArrayPath)
	if err != nil {
		return nil, err
	}

	ids := []int64{parentID}
	activeProviderIDs := make([]string, 0, len(children))

	for _, child := range children {
		childID, err := c.writeChild(ctx, tx, parentID, child)
		if err != nil {
			return nil, err
		}

		ids = append(ids, childID)

		providerID, err := extractProviderID(child)
		if err != nil {
			return nil, err
		}

		activeProviderIDs = append(activeProviderIDs, providerID)
	}

	if err := ReconcileChildren(ctx, tx, runID, c.writeLogObjectType(), c.ChildTable, c.ChildColumn, c.ChildProviderIDColumn, parentID, activeProviderIDs); err != nil {
		return nil, err
	}

	return ids, nil
}

// DeleteTree implements schema.WriteTree, removing the parent's children
// first to satisfy the foreign key before the parent row itself goes away.
func (c *ChildList) DeleteTree(ctx context.Context, tx *dbx.Tx, runID int64, providerID string) ([]int64, error) {
	parentID, err := lookupInternalID(ctx, tx, c.Parent.Table, c.Parent.ProviderIDColumn, providerID)
	if err != nil {
		return nil, err
	}

	if err := ReconcileChildren(ctx, tx, runID, c.writeLogObjectType(), c.ChildTable, c.ChildColumn, c.ChildProviderIDColumn, parentID, nil); err != nil {
		return nil, err
	}

	return c.Parent.DeleteTree(ctx, tx, runID, providerID)
}
