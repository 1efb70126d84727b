package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"designledger/internal/export"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <transaction-id>",
		Short: "Write a transaction's item lists to an Excel workbook",
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

			path := output
			if path == "" {
				path = export.FileName(view.Transaction)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			if err := export.Transaction(f, view.Transaction, view.InTransaction, view.MovedOut); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d in transaction, %d moved out)\n",
				path, len(view.InTransaction), len(view.MovedOut))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default derived from source and date)")
	return cmd
}
