package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabledog/tdog/internal/config"
	"github.com/tabledog/tdog/internal/dbx"
)

// ParentRef names a scalar foreign key this entity carries: a JSON field
// whose value is either the parent's provider id (a plain string) or an
// expanded object with an "id" field, resolved at write time to the
// parent's internal primary key.
type ParentRef struct {
	// JSONField is the key in the object's JSON representation that holds
	// the reference, e.g. "customer" on a charge.
	JSONField string
	// Column is the column on this entity's table that stores the
	// resolved internal id, e.g. "customer_id".
	Column string
	// ParentTable/ParentProviderIDColumn locate the parent row to resolve
	// against.
	ParentTable            string
	ParentProviderIDColumn string
}

// Simple is a schema.WriteTree for entities with no child rows of their own:
// one table, one provider-id column, a raw JSON payload column, and zero or
// more resolved scalar parent references. This covers the large majority of
// the catalog: the provider's own data model rarely nests more than one
// level of genuinely separate tables, and storing the full object alongside
// a handful of indexed/FK columns is the mechanical mapping spec'd for the
// bulk of the entity inventory.
type Simple struct {
	Table            string
	ProviderIDColumn string
	DataColumn       string
	Parents          []ParentRef
}

func extractProviderID(data []byte) (string, error) {
	var obj map[string]any

	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("entity: unmarshal: %w", err)
	}

	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("entity: payload has no string \"id\" field")
	}

	return id, nil
}

func extractParentRef(data []byte, field string) (string, bool, error) {
	var obj map[string]any

	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false, fmt.Errorf("entity: unmarshal: %w", err)
	}

	raw, ok := obj[field]
	if !ok || raw == nil {
		return "", false, nil
	}

	switch v := raw.(type) {
	case string:
		return v, true, nil
	case map[string]any:
		id, ok := v["id"].(string)

		return id, ok, nil
	default:
		return "", false, nil
	}
}

func lookupInternalID(ctx context.Context, tx *dbx.Tx, table, providerIDColumn, providerID string) (int64, error) {
	row := tx.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE %s = %s`, table, providerIDColumn, tx.Placeholders(1)), providerID)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("entity: lookup %s by %s=%s: %w", table, providerIDColumn, providerID, err)
	}

	return id, nil
}

func (s *Simple) resolveParents(ctx context.Context, tx *dbx.Tx, data []byte) (columns []string, values []any, err error) {
	for _, p := range s.Parents {
		providerID, present, extractErr := extractParentRef(data, p.JSONField)
		if extractErr != nil {
			return nil, nil, extractErr
		}

		if !present {
			columns = append(columns, p.Column)
			values = append(values, nil)

			continue
		}

		internalID, lookupErr := lookupInternalID(ctx, tx, p.ParentTable, p.ParentProviderIDColumn, providerID)
		if lookupErr != nil {
			return nil, nil, lookupErr
		}

		columns = append(columns, p.Column)
		values = append(values, internalID)
	}

	return columns, values, nil
}

// InsertTree implements schema.WriteTree.
func (s *Simple) InsertTree(ctx context.Context, tx *dbx.Tx, _ int64, data []byte) ([]int64, error) {
	providerID, err := extractProviderID(data)
	if err != nil {
		return nil, err
	}

	parentCols, parentVals, err := s.resolveParents(ctx, tx, data)
	if err != nil {
		return nil, err
	}

	cols := append([]string{s.ProviderIDColumn, s.DataColumn}, parentCols...)
	vals := append([]any{providerID, string(data)}, parentVals...)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, s.Table, join(cols), tx.Placeholders(len(cols)))

	id, err := insertReturningID(ctx, tx, s.Table, query, vals)
	if err != nil {
		return nil, fmt.Errorf("entity: insert %s: %w", s.Table, err)
	}

	return []int64{id}, nil
}

// UpsertTree implements schema.WriteTree: update the row if a provider id
// match exists, otherwise insert it, since the two dialects this store
// supports disagree on ON CONFLICT syntax and a plain update-then-insert is
// simpler than abstracting both.
func (s *Simple) UpsertTree(ctx context.Context, tx *dbx.Tx, runID int64, data []byte) ([]int64, error) {
	providerID, err := extractProviderID(data)
	if err != nil {
		return nil, err
	}

	parentCols, parentVals, err := s.resolveParents(ctx, tx, data)
	if err != nil {
		return nil, err
	}

	setCols := append([]string{s.DataColumn}, parentCols...)
	setVals := append([]any{string(data)}, parentVals...)

	updateQuery := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = %s`,
		s.Table, assignments(tx, setCols, 1), s.ProviderIDColumn, tx.PlaceholdersFrom(len(setCols)+1, 1))

	affected, err := tx.Update(ctx, updateQuery, append(setVals, providerID)...)
	if err != nil {
		return nil, fmt.Errorf("entity: update %s: %w", s.Table, err)
	}

	if affected > 0 {
		id, lookupErr := lookupInternalID(ctx, tx, s.Table, s.ProviderIDColumn, providerID)
		if lookupErr != nil {
			return nil, lookupErr
		}

		return []int64{id}, nil
	}

	return s.InsertTree(ctx, tx, runID, data)
}

// DeleteTree implements schema.WriteTree.
func (s *Simple) DeleteTree(ctx context.Context, tx *dbx.Tx, _ int64, providerID string) ([]int64, error) {
	id, err := lookupInternalID(ctx, tx, s.Table, s.ProviderIDColumn, providerID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = %s`, s.Table, s.ProviderIDColumn, tx.Placeholders(1))

	if _, err := tx.Delete(ctx, query, providerID); err != nil {
		return nil, fmt.Errorf("entity: delete %s: %w", s.Table, err)
	}

	return []int64{id}, nil
}

func join(cols []string) string {
	out := ""

	for i, c := range cols {
		if i > 0 {
			out += ", "
		}

		out += c
	}

	return out
}

// assignments builds "col1 = <ph>, col2 = <ph>, ..." for a SET clause,
// numbering placeholders from 1.
func assignments(tx *dbx.Tx, cols []string, _ int) string {
	out := ""

	for i, c := range cols {
		if i > 0 {
			out += ", "
		}

		out += c + " = " + tx.PlaceholdersFrom(i+1, 1)
	}

	return out
}

func insertReturningID(ctx context.Context, tx *dbx.Tx, table, query string, vals []any) (int64, error) {
	_ = table

	return tx.Insert(ctx, withReturningID(tx, query), vals...)
}

// withReturningID appends a RETURNING clause for dialects that support
// inline id-returning inserts; Tx.Insert ignores it for sqlite and uses
// LastInsertId instead.
func withReturningID(tx *dbx.Tx, query string) string {
	if tx.Kind() == config.SinkSQLite {
		return query
	}

	return query + " RETURNING id"
}
