// Package export renders transaction item lists as spreadsheets.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"designledger/internal/core"

	"github.com/xuri/excelize/v2"
)

const (
	SheetInTransaction = "In transaction"
	SheetMovedOut      = "Moved out"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	inHeader    = []any{"Item ID", "Description", "SKU", "Price", "Status"}
	movedHeader = []any{"Item ID", "Description", "SKU", "Price", "Moved to"}

	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// Transaction writes one workbook with a sheet per item list.
func Transaction(w io.Writer, tx core.Transaction, in, movedOut []core.TransactionItem) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(first, SheetInTransaction); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetMovedOut); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	inRows := make([][]any, 0, len(in))
	for _, it := range in {
		status := "in transaction"
		if it.Association.Kind == core.Unknown {
			status = "unverified"
		}
		inRows = append(inRows, itemRow(it.Item, status))
	}
	if err := writeSheet(f, SheetInTransaction, inHeader, inRows); err != nil {
		return err
	}

	movedRows := make([][]any, 0, len(movedOut))
	for _, it := range movedOut {
		movedRows = append(movedRows, itemRow(it.Item, it.Association.DestinationLabel()))
	}
	if err := writeSheet(f, SheetMovedOut, movedHeader, movedRows); err != nil {
		return err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("%s %s", tx.Source, tx.Date.String()),
		Creator: "designledger",
	}); err != nil {
		return fmt.Errorf("set properties: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName returns a download name like "west-elm_2025-03-01.xlsx".
func FileName(tx core.Transaction) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(tx.Source), "-"), "-")
	if base == "" {
		base = "transaction"
	}
	if d := tx.Date.String(); d != "" {
		base += "_" + d
	}
	return base + ".xlsx"
}

func itemRow(it core.Item, last string) []any {
	return []any{it.ID, it.Description, it.SKU, it.Price.Dollars(), last}
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
