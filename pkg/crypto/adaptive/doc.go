// Package adaptive seals small objects with an AEAD cipher chosen for
// the host: AES-256-GCM where the CPU accelerates AES, ChaCha20-Poly1305
// elsewhere.
//
// Sealed output is self-contained: a one-byte cipher tag, the nonce,
// then the ciphertext and tag. Open accepts output from either cipher,
// so data sealed on one host opens on another with the same key.
//
//	key, _ := adaptive.DeriveKey(secret, "blobs")
//	c, _ := adaptive.New(key)
//	sealed, _ := c.Seal(plaintext, aad)
//	plaintext, _ = c.Open(sealed, aad)
package adaptive
