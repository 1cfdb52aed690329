// Package cache provides the client-side view of server state: an in-memory
// map of settled values addressable by hierarchical keys, with the fetch
// supersession and snapshot/restore primitives the mutation executor builds on.
package cache

import "strings"

// Key addresses a cache entry by an ordered sequence of identifiers,
// e.g. ["claims", claimID, "items"].
type Key []string

// NewKey builds a key from ordered segments.
func NewKey(segments ...string) Key {
	return Key(segments)
}

// String renders the key in canonical form. Two keys render identically
// exactly when their segments are equal: a separator inside a segment is
// escaped, so ["a/b","c"] and ["a","b/c"] stay distinct map keys.
func (k Key) String() string {
	escaped := make([]string, len(k))
	for i, seg := range k {
		seg = strings.ReplaceAll(seg, "%", "%25")
		escaped[i] = strings.ReplaceAll(seg, "/", "%2F")
	}
	return strings.Join(escaped, "/")
}
