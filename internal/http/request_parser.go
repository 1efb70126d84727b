package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"designledger/internal/core"
)

const maxBodyBytes = 1 << 20

// FormValues is satisfied by url.Values and *RequestBodyParser.
type FormValues interface {
	Get(key string) string
}

// FieldError reports which form field failed to parse.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// RequestBodyParser reads JSON or form-encoded bodies, so htmx forms and
// JSON clients share the same handlers.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the request body once, up to 1 MiB.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns the sanitized value for key, or "".
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseRequiredAmount parses a positive decimal amount.
func parseRequiredAmount(field, raw string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(raw)
	if err != nil {
		return core.Money{}, &FieldError{Field: field, Err: err}
	}
	return core.Money{Cents: cents}, nil
}

// parseOptionalAmount treats a blank or zero amount as zero cents.
func parseOptionalAmount(field, raw string) (core.Money, error) {
	if isZeroAmount(raw) {
		return core.Money{}, nil
	}
	return parseRequiredAmount(field, raw)
}

func isZeroAmount(raw string) bool {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "$")
	if s == "" {
		return true
	}
	return strings.Contains(s, "0") && strings.Trim(s, "0.,") == ""
}

// ParseProjectForm reads name, client_name and an optional budget.
func ParseProjectForm(v FormValues) (core.Project, error) {
	budget, err := parseOptionalAmount("budget", v.Get("budget"))
	if err != nil {
		return core.Project{}, err
	}
	p := core.Project{
		Name:       sanitizeInput(v.Get("name")),
		ClientName: sanitizeInput(v.Get("client_name")),
		Budget:     budget,
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	return p, nil
}

// ParseTransactionForm reads a transaction. A blank date means today and a
// blank type means purchase. project_id is optional; without it the
// transaction belongs to business inventory.
func ParseTransactionForm(v FormValues, today time.Time) (core.Transaction, error) {
	date := core.NewDate(today.Year(), int(today.Month()), today.Day())
	if raw := strings.TrimSpace(v.Get("date")); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			return core.Transaction{}, &FieldError{Field: "date", Err: fmt.Errorf("expected YYYY-MM-DD, got %q", raw)}
		}
		date = d
	}
	amount, err := parseRequiredAmount("amount", v.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	txType := core.Purchase
	if raw := strings.ToLower(strings.TrimSpace(v.Get("type"))); raw != "" {
		txType = core.TransactionType(raw)
	}

	tx := core.Transaction{
		ProjectID: core.StringPtr(sanitizeInput(v.Get("project_id"))),
		Source:    sanitizeInput(v.Get("source")),
		Date:      date,
		Amount:    amount,
		Type:      txType,
		Notes:     sanitizeInput(v.Get("notes")),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// ParseItemForm reads description, sku and an optional price.
func ParseItemForm(v FormValues) (core.Item, error) {
	price, err := parseOptionalAmount("price", v.Get("price"))
	if err != nil {
		return core.Item{}, err
	}
	it := core.Item{
		Description: sanitizeInput(v.Get("description")),
		SKU:         sanitizeInput(v.Get("sku")),
		Price:       price,
	}
	if err := it.Validate(); err != nil {
		return core.Item{}, err
	}
	return it, nil
}

// ParseMoveForm reads the destination of a move and the transaction the
// request was made from, which may be blank.
func ParseMoveForm(v FormValues) (to, current string, err error) {
	to = sanitizeInput(v.Get("to_transaction_id"))
	if to == "" {
		return "", "", &FieldError{Field: "to_transaction_id", Err: fmt.Errorf("destination transaction is required")}
	}
	return to, sanitizeInput(v.Get("current_transaction_id")), nil
}
