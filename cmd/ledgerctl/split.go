package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"designledger/internal/core"
)

func newSplitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "split <transaction-id>",
		Short: "Show a transaction's items split into in-transaction and moved out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			view, err := svc.TransactionView(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load transaction %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  %s\n", view.Transaction.Source, view.Transaction.Date, view.Transaction.Amount)
			fmt.Fprintf(out, "\nIn this transaction (%d)\n", len(view.InTransaction))
			if err := writeItems(out, view.InTransaction, inStatus); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nMoved out (%d)\n", len(view.MovedOut))
			return writeItems(out, view.MovedOut, movedTo)
		},
	}
}

func writeItems(out io.Writer, items []core.TransactionItem, last func(core.Association) string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, it := range items {
		price := ""
		if it.Item.Price.Cents != 0 {
			price = it.Item.Price.String()
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", it.Item.Description, it.Item.SKU, price, last(it.Association))
	}
	return tw.Flush()
}

func inStatus(a core.Association) string {
	if a.Kind == core.Unknown {
		return "unverified"
	}
	return ""
}

func movedTo(a core.Association) string {
	return "-> " + a.DestinationLabel()
}
