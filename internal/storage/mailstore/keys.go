package mailstore

import "fmt"

func mailboxKey(id int32) []byte { return fmt.Appendf(nil, "m/%08x", uint32(id)) }

func itemPrefix(mailbox int32) []byte { return fmt.Appendf(nil, "i/%08x/", uint32(mailbox)) }

func itemKey(mailbox, id int32) []byte {
	return fmt.Appendf(nil, "i/%08x/%08x", uint32(mailbox), uint32(id))
}

func volumeKey(id int16) []byte { return fmt.Appendf(nil, "v/%04x", uint16(id)) }

func currentVolumeKey(t uint8) []byte { return fmt.Appendf(nil, "cv/%02x", t) }

func blobKey(digest string) []byte { return []byte("b/" + digest) }
