// Package handler provides the HTTP handlers of the operations endpoint.
//
// Handlers read from an Engine and answer with the standard JSON
// envelope (see Response). Health checks report 503 once the log writer
// has failed, since no further mutation can be made durable.
package handler
