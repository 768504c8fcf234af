// Package main provides the entry point for redolog-cli.
//
// redolog-cli inspects, verifies, recovers and compacts redo log
// directories offline, and queries a running redolog-server.
//
// Usage:
//
//	redolog-cli --data-dir /var/lib/redolog-server/data verify
//	redolog-cli --wal-dir ./wal -o json dump --kind CreateFolder
//	redolog-cli --server localhost:5080 status
package main
