package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
)

var errLedgerDrift = errors.New("cached XP does not match the ledger")

// checkLedger prints every balance and fails when one of them drifted.
func (cli *commandLine) checkLedger(ctx context.Context, userID string) error {
	balances, err := cli.gameSvc.VerifyLedger(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "verifying ledger")
	}

	var drifted int
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tCACHED\tLEDGER\tENTRIES\tDRIFT")
	for _, b := range balances {
		if b.Drift() != 0 {
			drifted++
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", b.Username, b.CachedXP, b.LedgerXP, b.EntryCount, b.Drift())
	}
	if err = w.Flush(); err != nil {
		return err
	}

	if drifted > 0 {
		return errors.Wrapf(errLedgerDrift, "%d of %d users", drifted, len(balances))
	}
	fmt.Fprintf(cli.out, "%d users checked, no drift\n", len(balances))
	return nil
}

func (cli *commandLine) adjustXP(ctx context.Context, userID string, quantity int, reason string) error {
	award, err := cli.gameSvc.Adjust(ctx, userID, quantity, reason)
	if err != nil {
		return errors.Wrap(err, "adjusting XP")
	}
	fmt.Fprintf(cli.out, "credited %d XP, balance is now %d\n", award.Credited, award.XP)
	for _, name := range award.NewMedals {
		fmt.Fprintf(cli.out, "granted the %s medal\n", name)
	}
	return nil
}
