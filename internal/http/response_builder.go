// Package http serves the HTMX inventory UI.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HX-Trigger event names the templates listen for.
const (
	EventItemMoved          = "item:moved"
	EventItemAdded          = "item:added"
	EventTransactionUpdated = "transaction:updated"
	EventProjectCreated     = "project:created"
	EventFormReset          = "form:reset"
	EventNotification       = "show-notification"
)

// HTMXResponseBuilder assembles a status, headers, HX-Trigger events and a
// body, then writes them in one go.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse starts a 200 response with no events.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the response status code.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event with optional detail data.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	if data == nil {
		data = struct{}{}
	}
	b.triggers[name] = data
	return b
}

// TriggerItemMoved announces a movement. An empty to means business inventory.
func (b *HTMXResponseBuilder) TriggerItemMoved(itemID, from, to string) *HTMXResponseBuilder {
	detail := map[string]string{"item_id": itemID, "from": from}
	if to != "" {
		detail["to"] = to
	}
	return b.Trigger(EventItemMoved, detail)
}

// TriggerItemAdded announces a new item in a transaction.
func (b *HTMXResponseBuilder) TriggerItemAdded(transactionID, itemID string) *HTMXResponseBuilder {
	return b.Trigger(EventItemAdded, map[string]string{"transaction_id": transactionID, "item_id": itemID})
}

// TriggerTransactionUpdated asks transaction views to refresh.
func (b *HTMXResponseBuilder) TriggerTransactionUpdated(transactionID string) *HTMXResponseBuilder {
	return b.Trigger(EventTransactionUpdated, map[string]string{"transaction_id": transactionID})
}

// TriggerProjectCreated announces a new project.
func (b *HTMXResponseBuilder) TriggerProjectCreated(projectID string) *HTMXResponseBuilder {
	return b.Trigger(EventProjectCreated, map[string]string{"project_id": projectID})
}

// TriggerFormReset clears the submitting form.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger(EventFormReset, nil)
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// TriggerNotification shows a toast of the given kind for durationMs.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(EventNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

// TriggerSuccessNotification shows a short success toast.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// Header sets a response header.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// Redirect asks htmx to navigate to url.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// Body sets the raw response body.
func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

// BodyHTML sets an HTML body and its content type.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends headers, events, status and body.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if payload, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(payload))
		}
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message, escaped, inside an error fragment.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

// BadRequestError is a 400 error fragment.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError is a 422 error fragment.
func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError is a 500 error fragment.
func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError is a 404 error fragment.
func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// TooManyRequestsError is a 429 error fragment.
func TooManyRequestsError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message)
}
