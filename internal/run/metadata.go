package run

import (
	"context"
	"fmt"

	"github.com/tabledog/tdog/internal/dbx"
)

// Metadata is the single td_metadata row pinned the first time a download
// completes: the account identity and API version every later run
// validates against (spec's version-pin gating and stale-database check).
type Metadata struct {
	ID               int64
	CLIVersion       string
	StripeVersion    string
	StripeAccountID  string
	StripeAccount    string // raw JSON
	StripeIsTest     bool
}

// GetMetadata returns the pinned metadata row, or found=false if no
// download has ever completed against this database.
func GetMetadata(ctx context.Context, tx *dbx.Tx) (m Metadata, found bool, err error) {
	row := tx.QueryRow(ctx, `SELECT id, cli_version, stripe_version, stripe_account_id, stripe_account, stripe_is_test FROM td_metadata ORDER BY id DESC LIMIT 1`)

	if scanErr := row.Scan(&m.ID, &m.CLIVersion, &m.StripeVersion, &m.StripeAccountID, &m.StripeAccount, &m.StripeIsTest); scanErr != nil {
		if isNoRows(scanErr) {
			return Metadata{}, false, nil
		}

		return Metadata{}, false, fmt.Errorf("run: get metadata: %w", scanErr)
	}

	return m, true, nil
}

// PinMetadata inserts the account metadata row. Called exactly once, at the
// end of a successful first download: every later run's api_version and
// account id must match what's pinned here.
func PinMetadata(ctx context.Context, tx *dbx.Tx, m Metadata) error {
	query := fmt.Sprintf(
		`INSERT INTO td_metadata (cli_version, stripe_version, stripe_account_id, stripe_account, stripe_is_test, heartbeat_ts) VALUES (%s, %s)`,
		tx.Placeholders(5), nowExpr(tx),
	)

	if _, err := tx.Insert(ctx, withReturning(tx, query), m.CLIVersion, m.StripeVersion, m.StripeAccountID, m.StripeAccount, m.StripeIsTest); err != nil {
		return fmt.Errorf("run: pin metadata: %w", err)
	}

	return nil
}

// Heartbeat stamps the metadata row's heartbeat_ts to now, the liveness
// signal a concurrent watcher process checks to detect a stuck run.
func Heartbeat(ctx context.Context, tx *dbx.Tx, metadataID int64) error {
	query := fmt.Sprintf(`UPDATE td_metadata SET heartbeat_ts = %s WHERE id = %s`, nowExpr(tx), tx.Placeholders(1))

	if _, err := tx.Update(ctx, query, metadataID); err != nil {
		return fmt.Errorf("run: heartbeat: %w", err)
	}

	return nil
}
