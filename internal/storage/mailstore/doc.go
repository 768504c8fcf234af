// Package mailstore is the mailbox store the redo log applies to.
//
// Mailboxes, items and volumes are JSON documents in a kv.Engine; blob
// content lives in files on the current primary volume, addressed by
// SHA-256 digest. Mutations are serialized by one lock so a
// read-modify-write never interleaves with another.
//
// Key layout:
//
//	m/<mailbox>          mailbox
//	i/<mailbox>/<item>   item
//	v/<volume>           volume
//	cv/<type>            current volume of a type
//	b/<digest>           stored blob
package mailstore
