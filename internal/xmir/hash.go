package xmir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource   = "shaker/source/v1"
	DomainDocument = "shaker/document/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content hash of raw source bytes. Registries use it
// when no external checksum is supplied for a program.
func Hash(source []byte) string {
	return hashWithDomain(DomainSource, source)
}

// Fingerprint hashes the canonical form of a document.
func Fingerprint(d *Document) string {
	return hashWithDomain(DomainDocument, Marshal(d))
}
