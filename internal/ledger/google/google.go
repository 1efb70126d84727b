package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"designledger/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Movements"

// Options configures the Sheets ledger. Exactly one credential source is
// needed unless the service is injected with NewWithService.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client appends movement rows to one sheet per year, e.g. "2025 Movements".
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu    sync.Mutex
	ready map[string]bool
}

var _ ledger.Writer = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentials(opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets ledger ready", "spreadsheet_id", opts.SpreadsheetID)
	return NewWithService(svc, opts.SpreadsheetID, opts.SheetName), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = defaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetName),
		ready:         make(map[string]bool),
	}
}

func credentials(opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func (c *Client) AppendMovement(ctx context.Context, e ledger.Entry) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.ItemID == "" {
		return "", errors.New("ledger entry without item id")
	}

	sheet := yearPrefixedName(c.sheetBase, e.MovedAt.UTC().Year())
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	rng := quoteSheet(sheet) + "!A:J"
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng,
		&gsheet.ValueRange{Values: [][]any{e.Row()}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Movement appended to ledger",
		"item_id", e.ItemID,
		"kind", e.Kind,
		"range", ref)
	return ref, nil
}

// ensureSheet creates the yearly sheet with a header row the first time it
// is needed.
func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready[sheet] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			c.ready[sheet] = true
			return nil
		}
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteSheet(sheet)+"!A1:J1",
		&gsheet.ValueRange{Values: [][]any{ledger.Header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header to %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Created ledger sheet", "sheet", sheet)
	c.ready[sheet] = true
	return nil
}
