package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"designledger/internal/core"
	"designledger/internal/export"
	applog "designledger/internal/log"
	"designledger/internal/services"
)

// transactionPage is the data behind the transaction view and its items
// partial.
type transactionPage struct {
	services.TransactionView
	Targets []core.Transaction
}

func (s *Server) loadTransactionPage(ctx context.Context, transactionID string) (transactionPage, error) {
	view, err := s.inventory.TransactionView(ctx, transactionID)
	if err != nil {
		return transactionPage{}, err
	}
	targets, err := s.inventory.MoveTargets(ctx, view.Transaction)
	if err != nil {
		return transactionPage{}, fmt.Errorf("move targets: %w", err)
	}
	return transactionPage{TransactionView: view, Targets: targets}, nil
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	page, err := s.loadTransactionPage(ctx, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpRead)
		return
	}
	s.render(w, r, nil, "transaction.html", page)
}

// handleTransactionItems renders the two item lists of a transaction.
func (s *Server) handleTransactionItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	page, err := s.loadTransactionPage(ctx, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpList)
		return
	}
	s.render(w, r, nil, "items", page)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}
	tx, err := ParseTransactionForm(parser, time.Now())
	if err != nil {
		UnprocessableEntityError("Invalid transaction: " + err.Error()).Write(w)
		return
	}

	created, err := s.inventory.CreateTransaction(r.Context(), tx)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpCreate)
		return
	}

	b := NewHTMXResponse().
		TriggerTransactionUpdated(created.ID).
		TriggerFormReset().
		TriggerSuccessNotification("Transaction added")
	s.render(w, r, b, "transaction_row", created)
}

// handleUpdateTransaction edits source, date, amount, type and notes. The
// project of a transaction does not change.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}

	existing, err := s.inventory.GetTransaction(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpUpdate)
		return
	}
	edited, err := ParseTransactionForm(parser, existing.Date.Time)
	if err != nil {
		UnprocessableEntityError("Invalid transaction: " + err.Error()).Write(w)
		return
	}
	existing.Source = edited.Source
	existing.Date = edited.Date
	existing.Amount = edited.Amount
	existing.Type = edited.Type
	existing.Notes = edited.Notes

	updated, err := s.inventory.UpdateTransaction(r.Context(), existing)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpUpdate)
		return
	}
	s.requestLogger(r).InfoContext(r.Context(), "Transaction updated",
		applog.FieldTransactionID, updated.ID,
		applog.FieldAmountCents, updated.Amount.Cents)

	b := NewHTMXResponse().
		TriggerTransactionUpdated(updated.ID).
		TriggerSuccessNotification("Transaction saved")
	s.render(w, r, b, "transaction_summary", updated)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("id")
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}
	it, err := ParseItemForm(parser)
	if err != nil {
		UnprocessableEntityError("Invalid item: " + err.Error()).Write(w)
		return
	}

	created, err := s.inventory.AddItem(r.Context(), transactionID, it)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpCreate)
		return
	}
	page, err := s.loadTransactionPage(r.Context(), transactionID)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpList)
		return
	}

	b := NewHTMXResponse().
		TriggerItemAdded(transactionID, created.ID).
		TriggerFormReset()
	s.render(w, r, b, "items", page)
}

// handleExportTransaction streams the transaction as an XLSX workbook.
func (s *Server) handleExportTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := s.inventory.TransactionView(ctx, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpExport)
		return
	}

	var buf bytes.Buffer
	if err := export.Transaction(&buf, view.Transaction, view.InTransaction, view.MovedOut); err != nil {
		s.writeServiceError(w, r, err, applog.OpExport)
		return
	}
	s.requestLogger(r).InfoContext(ctx, "Transaction exported",
		applog.FieldTransactionID, view.Transaction.ID,
		"bytes", buf.Len())

	NewHTMXResponse().
		Header("Content-Type", export.ContentType).
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(view.Transaction))).
		Header("Content-Length", strconv.Itoa(buf.Len())).
		Body(buf.Bytes()).
		Write(w)
}
