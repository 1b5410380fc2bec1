package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
)

// ErrLossyChildList is returned when an event carries a has_more=true child
// list: the event payload only ever contains the first page, so accepting
// it at face value would silently drop every line past that page. The
// original implementation crashes loudly on this rather than truncate;
// this carries that assertion forward instead of softening it.
var ErrLossyChildList = errors.New("entity: event payload has a truncated (has_more) child list")

// UnboundedChild is a schema.WriteTree for a parent entity whose embedded
// child array is itself paginated (invoice line items, credit note line
// items): the downloader walks every page separately, so on download this
// type only appends whatever page it's handed; on event application, since
// an event never carries more than the first page, a has_more=true payload
// is a hard error rather than a silent truncation.
type UnboundedChild struct {
	Parent *Simple

	// ListField names the JSON object (a provider-style paginated list)
	// holding "data" and "has_more", e.g. "lines" on an invoice.
	ListField string

	ChildTable            string
	ChildColumn           string
	ChildProviderIDColumn string
	ChildDataColumn       string

	// ChildWriteLogObjectType is the write log's obj_type for rows dropped
	// by DeleteTree. Falls back to ChildTable when unset.
	ChildWriteLogObjectType string
}

func (u *UnboundedChild) writeLogObjectType() string {
	if u.ChildWriteLogObjectType != "" {
		return u.ChildWriteLogObjectType
	}

	return u.ChildTable
}

func (u *UnboundedChild) hasMore(data []byte) (bool, error) {
	var obj map[string]any

	if err := json.Unmarshal(data, &obj); err != nil {
		return false, fmt.Errorf("entity: unmarshal: %w", err)
	}

	list, ok := obj[u.ListField].(map[string]any)
	if !ok {
		return false, nil
	}

	hasMore, _ := list[hasMoreKey].(bool)

	return hasMore, nil
}

const hasMoreKey = "has_more"

func (u *UnboundedChild) writeChild(ctx context.Context, tx *dbx.Tx, parentID int64, childData []byte) (int64, error) {
	providerID, err := extractProviderID(childData)
	if err != nil {
		return 0, err
	}

	updateQuery := fmt.Sprintf(`UPDATE %s SET %s = %s, %s = %s WHERE %s = %s`,
		u.ChildTable, u.ChildDataColumn, tx.PlaceholdersFrom(1, 1),
		u.ChildColumn, tx.PlaceholdersFrom(2, 1),
		u.ChildProviderIDColumn, tx.PlaceholdersFrom(3, 1))

	affected, err := tx.Update(ctx, updateQuery, string(childData), parentID, providerID)
	if err != nil {
		return 0, fmt.Errorf("entity: update child %s: %w", u.ChildTable, err)
	}

	if affected > 0 {
		return lookupInternalID(ctx, tx, u.ChildTable, u.ChildProviderIDColumn, providerID)
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES (%s)`,
		u.ChildTable, u.ChildProviderIDColumn, u.ChildColumn, u.ChildDataColumn, tx.Placeholders(3))

	id, err := insertReturningID(ctx, tx, u.ChildTable, insertQuery, []any{providerID, parentID, string(childData)})
	if err != nil {
		return 0, fmt.Errorf("entity: insert child %s: %w", u.ChildTable, err)
	}

	return id, nil
}

// InsertTree implements schema.WriteTree: used during download, where the
// downloader has already walked every page of the child list separately
// and the embedded "data" array here is just the first page to seed.
func (u *UnboundedChild) InsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error) {
	parentIDs, err := u.Parent.InsertTree(ctx, tx, runID, data)
	if err != nil {
		return nil, err
	}

	parentID := parentIDs[0]

	children, err := navigate(data, u.ListField+".data")
	if err != nil {
		return nil, err
	}

	ids := []int64{parentID}

	for _, child := range children {
		childID, err := u.writeChild(ctx, tx, parentID, child)
		if err != nil {
			return nil, err
		}

		ids = append(ids, childID)
	}

	return ids, nil
}

// UpsertTree implements schema.WriteTree: used during event application,
// where a has_more=true payload can't be trusted as the complete set.
func (u *UnboundedChild) UpsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error) {
	more, err := u.hasMore(data)
	if err != nil {
		return nil, err
	}

	if more {
		return nil, fmt.Errorf("%w: %s", ErrLossyChildList, u.ChildTable)
	}

	parentIDs, err := u.Parent.UpsertTree(ctx, tx, runID, data)
	if err != nil {
		return nil, err
	}

	parentID := parentIDs[0]

	children, err := navigate(data, u.ListField+".data")
	if err != nil {
		return nil, err
	}

	ids := []int64{parentID}

	for _, child := range children {
		childID, err := u.writeChild(ctx, tx, parentID, child)
		if err != nil {
			return nil, err
		}

		ids = append(ids, childID)
	}

	return ids, nil
}

// DeleteTree implements schema.WriteTree.
func (u *UnboundedChild) DeleteTree(ctx context.Context, tx *dbx.Tx, runID int64, providerID string) ([]int64, error) {
	parentID, err := lookupInternalID(ctx, tx, u.Parent.Table, u.Parent.ProviderIDColumn, providerID)
	if err != nil {
		return nil, err
	}

	if err := ReconcileChildren(ctx, tx, runID, u.writeLogObjectType(), u.ChildTable, u.ChildColumn, u.ChildProviderIDColumn, parentID, nil); err != nil {
		return nil, err
	}

	return u.Parent.DeleteTree(ctx, tx, runID, providerID)
}
