package http

import (
	"net/http"

	"designledger/internal/amqp"
	"designledger/internal/core"
	applog "designledger/internal/log"
)

// handleMoveItem moves an item to to_transaction_id and re-renders the items
// of the transaction the request came from.
func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}
	to, current, err := ParseMoveForm(parser)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	m, err := s.inventory.MoveItem(r.Context(), r.PathValue("id"), to)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpMove)
		return
	}
	s.movementDone(w, r, m, current, amqp.KindMoved, "Item moved")
}

// handleReturnItem sends an item back to business inventory.
func (s *Server) handleReturnItem(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return
	}

	m, err := s.inventory.ReturnItemToInventory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpReturn)
		return
	}
	s.movementDone(w, r, m, parser.Get("current_transaction_id"), amqp.KindReturned, "Item returned to inventory")
}

// movementDone logs the movement and renders the items partial of current,
// falling back to the transaction the item left.
func (s *Server) movementDone(w http.ResponseWriter, r *http.Request, m core.Movement, current, kind, message string) {
	to := core.Deref(m.ToTransactionID)
	applog.NewStructuredLogger(s.requestLogger(r)).LogItemMoved(r.Context(), m.ItemID, m.FromTransactionID, to, kind)

	if current == "" {
		current = m.FromTransactionID
	}
	page, err := s.loadTransactionPage(r.Context(), current)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpList)
		return
	}

	b := NewHTMXResponse().
		TriggerItemMoved(m.ItemID, m.FromTransactionID, to).
		TriggerSuccessNotification(message)
	s.render(w, r, b, "items", page)
}
