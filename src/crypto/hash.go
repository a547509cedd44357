package crypto

import (
	"crypto/sha256"
)

// HashSize is the length in bytes of every hash in the ledger.
const HashSize = sha256.Size

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of left
// and right data.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	var hasher = sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// ZeroHash returns HashSize zero bytes. It is the prev_hash of the genesis
// block and the merkle root of an empty transaction list.
func ZeroHash() []byte {
	return make([]byte, HashSize)
}

// MerkleRoot computes a binary SHA256 tree over the leaves, in order. On odd
// levels the last node is paired with itself.
func MerkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return ZeroHash()
	}

	level := make([][]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, SimpleHashFromTwoHashes(level[i], right))
		}
		level = next
	}

	return level[0]
}
