// Package tlsroots loads TLS material for the server and CLI.
//
// KeyPair serves the server certificate and reloads it when the
// certificate or key file changes, so renewed certificates take effect
// without a restart. LoadPool and ClientConfig build the trust roots the
// CLI uses to reach a server signed by a private CA.
package tlsroots
