// Package storage persists the client's renewal credential in one of two
// durability tiers and carries the cross-tab coordination flags. The durable
// tier is shared by every tab of one logical session; the session tier lives
// and dies with a single tab.
package storage

// Store is a generic keyed store. Get returns "" for absent keys; errors mean
// the backing medium failed.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
