package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/providerclient"
	"github.com/tabledog/tdog/internal/run"
	"github.com/tabledog/tdog/internal/schema"
	"github.com/tabledog/tdog/internal/scheduler"
)

// paymentMethodWorkers bounds how many customers are listed concurrently:
// unlike the flat endpoints, payment methods require one list call per
// customer, so an unbounded fan-out here would flood the scheduler's queue
// with low-priority tickets for an account with many customers.
const paymentMethodWorkers = 8

// DownloadPaymentMethods lists /customers/{id}/payment_methods for every
// customer row already written this run, since payment methods have no
// flat account-level list endpoint of their own.
func DownloadPaymentMethods(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	client providerclient.Client,
	sched *scheduler.Scheduler,
	reg *schema.Registry,
	exitOnLimit bool,
	logger *slog.Logger,
) error {
	tree, err := reg.WriteTreeFor("payment_method")
	if err != nil {
		return fmt.Errorf("downloader: payment methods: %w", err)
	}

	table, err := reg.Table("payment_method")
	if err != nil {
		return fmt.Errorf("downloader: payment methods: %w", err)
	}

	customerIDs, err := listCustomerProviderIDs(ctx, tx)
	if err != nil {
		return fmt.Errorf("downloader: payment methods: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(paymentMethodWorkers)

	for _, customerID := range customerIDs {
		customerID := customerID

		g.Go(func() error {
			return downloadCustomerPaymentMethods(gctx, tx, runID, client, sched, tree, table.Name, customerID, exitOnLimit)
		})
	}

	return g.Wait()
}

func listCustomerProviderIDs(ctx context.Context, tx *dbx.Tx) ([]string, error) {
	rows, err := tx.Query(ctx, `SELECT stripe_id FROM td_customer`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan customer id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func downloadCustomerPaymentMethods(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	client providerclient.Client,
	sched *scheduler.Scheduler,
	tree schema.WriteTree,
	tableName, customerID string,
	exitOnLimit bool,
) error {
	endpoint := fmt.Sprintf("/customers/%s/payment_methods", customerID)
	cursor := ""

	for {
		ticket := sched.Enqueue(scheduler.Low)
		if err := ticket.Wait(ctx); err != nil {
			return err
		}

		page, err := client.List(ctx, endpoint, cursor, pageSize)
		if err != nil {
			if errors.Is(err, providerclient.ErrRateLimited) {
				if pauseErr := sched.OnRateLimited(ctx, exitOnLimit); pauseErr != nil {
					return pauseErr
				}

				continue
			}

			return fmt.Errorf("downloader: list %s: %w", endpoint, err)
		}

		for _, obj := range page.Data {
			ids, err := tree.InsertTree(ctx, tx, runID, obj)
			if err != nil {
				return fmt.Errorf("downloader: insert payment_method: %w", err)
			}

			if len(ids) == 0 {
				continue
			}

			if _, err := run.RecordWrite(ctx, tx, runID, "payment_method", extractID(obj), tableName, run.WriteInsert); err != nil {
				return fmt.Errorf("downloader: write log payment_method: %w", err)
			}
		}

		if !page.HasMore {
			return nil
		}

		cursor = page.NextCursor
	}
}
