package service

import "sync"

// numPhoneShards bounds memory; unrelated numbers may share a shard.
const numPhoneShards = 128

// phoneLocks serializes registrations and updates that target the same
// normalized phone number within this process.
type phoneLocks struct {
	shards [numPhoneShards]sync.Mutex
}

func (l *phoneLocks) lock(normalized string) (unlock func()) {
	m := &l.shards[hashPhone(normalized)%numPhoneShards]
	m.Lock()
	return m.Unlock
}

// hashPhone is FNV-1a.
func hashPhone(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
