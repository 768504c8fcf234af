// Package logger builds the slog loggers used by the server and the CLI.
//
// Every logger shares one process-wide level, adjustable with SetLevel
// while running. Attributes holding key material or named like secrets
// are masked before they reach the output. Request and transaction
// attributes can ride on a context.Context (WithAttrs, WithRequestID) and
// are added to any record logged with that context.
package logger
