// Package cmap provides a sharded, string-keyed concurrent map.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash; each shard has its own lock. SortedRange adds the ordered prefix
// iteration a key-value engine needs.
package cmap
