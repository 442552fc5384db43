package merkle

import "encoding/binary"

// DeriveAssetID deterministically derives a compressed asset's id from
// its tree id and nonce: SHA-256(tree_id || nonce_le64). This keeps the
// same asset id stable across every event replayed against that leaf.
func DeriveAssetID(treeID []byte, nonce int64) []byte {
	buf := make([]byte, len(treeID)+8)
	copy(buf, treeID)
	binary.LittleEndian.PutUint64(buf[len(treeID):], uint64(nonce))
	return HashData(buf)
}

// LeafHash computes the hash stored in a change-log entry for a leaf
// given its owner, delegate, nonce and data hash, mirroring the fields
// a compressed-asset leaf commits to.
func LeafHash(owner, delegate []byte, nonce int64, dataHash, creatorHash []byte) []byte {
	nonceBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBuf, uint64(nonce))

	h := owner
	h = CombineHashes(h, delegate)
	h = CombineHashes(h, nonceBuf)
	h = CombineHashes(h, dataHash)
	h = CombineHashes(h, creatorHash)
	return h
}
