package lock

import "hash/fnv"

// KeyPair is the two-integer form matching the two-argument advisory lock
// functions. Key1 depends only on the namespace, Key2 only on the identifier.
type KeyPair struct {
	Key1 int32
	Key2 int32
}

// Combined folds the pair into the single int64 used for in-memory tracking,
// mirroring how the server stores two-part keys (classid/objid).
func (p KeyPair) Combined() int64 {
	return int64(uint64(uint32(p.Key1))<<32 | uint64(uint32(p.Key2)))
}

// hash32 hashes s with FNV-1a and clears the sign bit, producing a
// non-negative 32-bit value. The hash is pure: any process computes the same
// key for the same input with no shared counter or coordination service,
// which is what makes advisory keys usable across uncoordinated clients.
// Distinct inputs may collide; callers needing isolation use two-part keys.
func hash32(s string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int32(h.Sum32() & 0x7fffffff)
}

// GenerateKey derives the single-integer advisory lock key for an identifier
// under the manager's namespace prefix.
func (m *Manager) GenerateKey(identifier string) int64 {
	return int64(hash32(m.config.Namespace + ":" + identifier))
}

// GenerateTwoPartKey derives a two-integer key. The halves are hashed
// independently so keys sharing a namespace share Key1.
func (m *Manager) GenerateTwoPartKey(namespace, identifier string) KeyPair {
	return KeyPair{
		Key1: hash32(namespace),
		Key2: hash32(identifier),
	}
}
