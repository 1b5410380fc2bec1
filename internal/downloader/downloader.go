// Package downloader performs the bulk download half of a mirror: walking
// every page of every registered entity's list endpoint and writing each
// object straight into the schema.Registry's WriteTree for that type. Every
// goroutine here shares the one transaction the run holds and the one
// scheduler gating outbound requests, per spec's single-transaction,
// shared-rate-limit model.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/debugcheck"
	"github.com/tabledog/tdog/internal/providerclient"
	"github.com/tabledog/tdog/internal/run"
	"github.com/tabledog/tdog/internal/schema"
	"github.com/tabledog/tdog/internal/scheduler"
)

// Endpoint names one top-level, flatly-paginated list endpoint to mirror.
type Endpoint struct {
	Path       string
	ObjectType string
	Priority   scheduler.Priority
}

// pageSize is the page size requested on every list call; the provider's
// own API caps this well above what any one mirrored account needs per
// page in practice.
const pageSize = 100

func extractID(data json.RawMessage) string {
	var obj struct {
		ID string `json:"id"`
	}

	_ = json.Unmarshal(data, &obj)

	return obj.ID
}

// Run downloads every endpoint concurrently, bounded by the shared
// scheduler's rate limit, and writes each page into its registered
// WriteTree inside tx. It returns once every endpoint has reached its last
// page or any one of them fails.
func Run(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	client providerclient.Client,
	sched *scheduler.Scheduler,
	reg *schema.Registry,
	endpoints []Endpoint,
	exitOnLimit bool,
	logger *slog.Logger,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, ep := range endpoints {
		ep := ep

		g.Go(func() error {
			return downloadEndpoint(gctx, tx, runID, client, sched, reg, ep, exitOnLimit, logger)
		})
	}

	return g.Wait()
}

// DownloadAll runs the flat endpoint fan-out and the prices active/inactive
// double pass concurrently, then the per-customer payment method batch.
// Payment methods run last, not alongside the rest: they're listed per
// customer, so they must wait until every customer page has landed or an
// account's later-paginated customers would never get their payment
// methods queried.
func DownloadAll(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	client providerclient.Client,
	sched *scheduler.Scheduler,
	reg *schema.Registry,
	exitOnLimit bool,
	logger *slog.Logger,
) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return Run(gctx, tx, runID, client, sched, reg, DefaultEndpoints(), exitOnLimit, logger)
	})
	g.Go(func() error {
		return DownloadPrices(gctx, tx, runID, client, sched, reg, exitOnLimit, logger)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if err := DownloadPaymentMethods(ctx, tx, runID, client, sched, reg, exitOnLimit, logger); err != nil {
		return err
	}

	debugcheck.Check(ctx, tx, reg, logger)

	return nil
}

func downloadEndpoint(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	client providerclient.Client,
	sched *scheduler.Scheduler,
	reg *schema.Registry,
	ep Endpoint,
	exitOnLimit bool,
	logger *slog.Logger,
) error {
	tree, err := reg.WriteTreeFor(ep.ObjectType)
	if err != nil {
		return fmt.Errorf("downloader: %s: %w", ep.Path, err)
	}

	table, err := reg.Table(ep.ObjectType)
	if err != nil {
		return fmt.Errorf("downloader: %s: %w", ep.Path, err)
	}

	cursor := ""
	pages := 0

	for {
		ticket := sched.Enqueue(ep.Priority)
		if waitErr := ticket.Wait(ctx); waitErr != nil {
			return fmt.Errorf("downloader: %s: %w", ep.Path, waitErr)
		}

		page, listErr := client.List(ctx, ep.Path, cursor, pageSize)
		if listErr != nil {
			if errors.Is(listErr, providerclient.ErrRateLimited) {
				if pauseErr := sched.OnRateLimited(ctx, exitOnLimit); pauseErr != nil {
					return pauseErr
				}

				continue
			}

			return fmt.Errorf("downloader: list %s: %w", ep.Path, listErr)
		}

		for _, obj := range page.Data {
			ids, insertErr := tree.InsertTree(ctx, tx, runID, obj)
			if insertErr != nil {
				return fmt.Errorf("downloader: insert %s: %w", ep.ObjectType, insertErr)
			}

			if len(ids) == 0 {
				continue
			}

			if _, err := run.RecordWrite(ctx, tx, runID, ep.ObjectType, extractID(obj), table.Name, run.WriteInsert); err != nil {
				return fmt.Errorf("downloader: write log %s: %w", ep.ObjectType, err)
			}
		}

		pages++

		if !page.HasMore {
			logger.Info("endpoint download complete", slog.String("endpoint", ep.Path), slog.Int("pages", pages))

			return nil
		}

		cursor = page.NextCursor
	}
}
