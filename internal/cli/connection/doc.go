// Package connection is the client redolog-cli uses to reach a running
// redolog-server.
//
// Each API route has a typed method. Responses arrive in the server's
// envelope ({code, message, request_id, data}); failures come back as
// *APIError carrying the server's error code and request id.
package connection
