// Package redo is the catalog of logged mailbox operations.
//
// Every operation is a struct implementing service.Redoable: a stable kind
// tag, a version-gated field encoding, and a Redo method that applies the
// operation to a service.Store. Registry returns the kind table the log
// reader and writer use to decode records.
//
// Tags are grouped by area and never reused:
//
//	10-19  mailboxes
//	20-29  folders, mountpoints, saved searches, tags
//	30-49  items
//	50-59  calendar
//	60-69  volumes
package redo
