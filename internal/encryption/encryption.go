// Package encryption provides artifact-at-rest encryption for plans and
// manifests written by internal/artifacts. It is optional: artifacts.Store
// works unencrypted when no Encryptor is configured.
package encryption

import "io"

// Encryptor encrypts artifact bytes for storage.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
	IsConfigured() bool
}

// DecryptionContext holds whatever key material is needed to decrypt
// artifacts previously written by an Encryptor.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
