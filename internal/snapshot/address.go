package snapshot

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Address is a 32-byte BLAKE3 digest. All content addresses in the
// pipeline (file, snapshot, manifest, build key) are this size.
type Address [32]byte

// String returns the lowercase hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero value, which no real
// content hash can produce in practice.
func (a Address) IsZero() bool {
	return a == Address{}
}

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain separation
// ensures that the same input bytes produce different addresses in
// different contexts, preventing cross-domain collisions (e.g., a file
// whose content happens to equal a canonical snapshot encoding).
type domainKey [32]byte

// Domain separation keys. These are fixed constants — changing them
// invalidates every previously computed address in that domain. The byte
// values are the ASCII encoding of the domain name, zero-padded to 32
// bytes, so the keys stay readable in hex dumps.
var (
	fileDomainKey = domainKey{
		'b', 'i', 'n', 'f', 'o', 'r', 'g', 'e', '.', 's', 'n', 'a', 'p', '.',
		'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	treeDomainKey = domainKey{
		'b', 'i', 'n', 'f', 'o', 'r', 'g', 'e', '.', 's', 'n', 'a', 'p', '.',
		't', 'r', 'e', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	manifestDomainKey = domainKey{
		'b', 'i', 'n', 'f', 'o', 'r', 'g', 'e', '.', 'm', 'a', 'n', 'i', 'f',
		'e', 's', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	buildKeyDomainKey = domainKey{
		'b', 'i', 'n', 'f', 'o', 'r', 'g', 'e', '.', 'b', 'u', 'i', 'l', 'd',
		'.', 'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// keyedHash computes the BLAKE3 keyed hash of data under the given domain
// key. BLAKE3 keyed initialization only fails for keys of the wrong
// length, which the domainKey type rules out, so a failure here is a
// programming error and panics.
func keyedHash(key domainKey, data []byte) Address {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var addr Address
	copy(addr[:], hasher.Sum(nil))
	return addr
}

// HashFileContent computes the file-domain address of a single file's
// bytes. Per-entry addresses feed into the snapshot's tree address.
func HashFileContent(data []byte) Address {
	return keyedHash(fileDomainKey, data)
}

// HashManifest computes the manifest-domain address of a locked manifest's
// raw bytes. The manifest is addressed separately from the source snapshot
// because it enters the build as its own typed input.
func HashManifest(data []byte) Address {
	return keyedHash(manifestDomainKey, data)
}

// BuildKey computes the cache key for one Artifact Builder invocation from
// the snapshot address, the manifest address, and the link mode string.
// Identical triples always yield the same key — this is the determinism
// contract the builder's cache relies on.
func BuildKey(snapshotAddr, manifestAddr Address, mode string) Address {
	input := make([]byte, 0, len(snapshotAddr)+len(manifestAddr)+len(mode)+1)
	input = append(input, snapshotAddr[:]...)
	input = append(input, manifestAddr[:]...)
	input = append(input, 0)
	input = append(input, mode...)
	return keyedHash(buildKeyDomainKey, input)
}
