package downloader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tabledog/tdog/internal/dbx"
	"github.com/tabledog/tdog/internal/providerclient"
	"github.com/tabledog/tdog/internal/schema"
	"github.com/tabledog/tdog/internal/scheduler"
)

// DownloadPrices walks /prices twice, once for active=true and once for
// active=false: the provider's own list endpoint silently defaults to
// active-only, so a plain single pass would never see archived prices that
// existing invoices and subscriptions still reference.
func DownloadPrices(
	ctx context.Context,
	tx *dbx.Tx,
	runID int64,
	client providerclient.Client,
	sched *scheduler.Scheduler,
	reg *schema.Registry,
	exitOnLimit bool,
	logger *slog.Logger,
) error {
	for _, path := range []string{"/prices?active=true", "/prices?active=false"} {
		ep := Endpoint{Path: path, ObjectType: "price", Priority: scheduler.Low}

		if err := downloadEndpoint(ctx, tx, runID, client, sched, reg, ep, exitOnLimit, logger); err != nil {
			return fmt.Errorf("downloader: prices: %w", err)
		}
	}

	return nil
}
