package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent scan runs and liquidations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no scan runs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Head (UTC)\tScanned\tAttempted\tSucceeded\tErrors\tPrice\tLowest ratio %")
	for _, run := range runs {
		lowest := "-"
		if run.LowestRatioPct != nil {
			lowest = run.LowestRatioPct.StringFixed(2)
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			run.HeadTS.UTC().Format(time.RFC3339),
			run.VaultsScanned,
			run.LiquidationsAttempted,
			run.LiquidationsSucceeded,
			run.ErrorCount,
			run.OraclePrice.StringFixed(6),
			lowest,
		)
	}
	writer.Flush()

	liquidations, err := store.ListRecentLiquidations(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(liquidations) == 0 {
		fmt.Fprintln(os.Stdout, "\nno liquidations recorded")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tVault\tAmount\tPayout\tStatus\tTx\tError")
	for _, record := range liquidations {
		errMsg := ""
		if record.Error != nil {
			errMsg = sanitizeInline(*record.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.CreatedAt.UTC().Format(time.RFC3339),
			record.VaultOwner,
			record.Amount.StringFixed(6),
			record.ExpectedPayout.StringFixed(6),
			record.Status,
			record.TxHash,
			errMsg,
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
