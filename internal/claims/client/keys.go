package client

import "claimstack/internal/cache"

// Cache key constructors. Every reader and every mutation touching the same
// data must build keys through these, so optimistic writes and background
// fetches always collide on the same entry.

// ClaimKey names the cache entry holding one claim.
func ClaimKey(claimID string) cache.Key {
	return cache.NewKey("claims", claimID)
}

// ClaimsKey names the cache entry holding the claim list.
func ClaimsKey() cache.Key {
	return cache.NewKey("claims")
}

// ItemsKey names the cache entry holding a claim's ordered item list.
func ItemsKey(claimID string) cache.Key {
	return cache.NewKey("claims", claimID, "items")
}

// AttachmentsKey names the cache entry holding an item's attachment list.
func AttachmentsKey(itemID string) cache.Key {
	return cache.NewKey("items", itemID, "attachments")
}
