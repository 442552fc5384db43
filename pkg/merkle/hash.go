// Package merkle implements the pure, store-free pieces of the compressed
// asset tree domain: deterministic leaf/asset id derivation and
// changelog gap detection. Full tree construction and inclusion-proof
// generation are not implemented here — this indexer only ever stores
// raw leaf/changelog data, it never produces cryptographic proofs.
package merkle

import "crypto/sha256"

// HashData returns the SHA-256 digest of data.
func HashData(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// CombineHashes returns SHA-256(left || right), the node-hashing rule a
// concurrent Merkle tree of this shape uses.
func CombineHashes(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
