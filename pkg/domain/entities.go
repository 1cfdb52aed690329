// Package domain defines the persistent entities and value types shared by
// the claimstack client and server.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the claims domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityClaim identifies a claim record.
	EntityClaim EntityType = "claim"
	// EntityItem identifies a claim line-item record.
	EntityItem EntityType = "item"
	// EntityAttachment identifies an attachment record.
	EntityAttachment EntityType = "attachment"
)

// ClaimStatus enumerates the claim workflow states.
type ClaimStatus string

// Canonical claim statuses.
const (
	ClaimStatusDraft     ClaimStatus = "draft"
	ClaimStatusSubmitted ClaimStatus = "submitted"
	ClaimStatusApproved  ClaimStatus = "approved"
	ClaimStatusDenied    ClaimStatus = "denied"
	ClaimStatusClosed    ClaimStatus = "closed"
)

// ItemStatus enumerates line-item review states.
type ItemStatus string

// Canonical item statuses.
const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusApproved ItemStatus = "approved"
	ItemStatusDenied   ItemStatus = "denied"
)

// Origin tags where an entity came from. Entities synthesized client-side
// ahead of server confirmation are optimistic; everything the server returns
// is confirmed.
type Origin string

const (
	// OriginOptimistic marks a client-synthesized placeholder entity.
	OriginOptimistic Origin = "optimistic"
	// OriginConfirmed marks a server-issued entity.
	OriginConfirmed Origin = "confirmed"
)

// TempIDPrefix is the reserved identifier prefix for optimistic placeholder
// entities. Server-issued identifiers never carry it.
const TempIDPrefix = "tmp-"

// NewID returns a random hex identifier.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// NewTempID returns a placeholder identifier carrying the reserved prefix.
func NewTempID() string {
	return TempIDPrefix + NewID()
}

// IsTempID reports whether id names an optimistic placeholder entity.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Claim is an insurance claim under management.
type Claim struct {
	ID           string      `json:"id"`
	Origin       Origin      `json:"origin,omitempty"`
	Number       string      `json:"number"`
	ClaimantName string      `json:"claimant_name"`
	PolicyNumber string      `json:"policy_number,omitempty"`
	Status       ClaimStatus `json:"status"`
	IncidentDate *time.Time  `json:"incident_date,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// EntityID returns the claim identifier.
func (c Claim) EntityID() string { return c.ID }

// ClaimItem is a single line item within a claim.
type ClaimItem struct {
	ID          string     `json:"id"`
	Origin      Origin     `json:"origin,omitempty"`
	ClaimID     string     `json:"claim_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Position    int        `json:"position"`
	Status      ItemStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EntityID returns the item identifier.
func (i ClaimItem) EntityID() string { return i.ID }

// Attachment is a file attached to a claim line item. The payload itself
// lives in blob storage under BlobKey; the record carries metadata only.
type Attachment struct {
	ID          string    `json:"id"`
	Origin      Origin    `json:"origin,omitempty"`
	ItemID      string    `json:"item_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	BlobKey     string    `json:"blob_key,omitempty"`
	PreviewURL  string    `json:"preview_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntityID returns the attachment identifier.
func (a Attachment) EntityID() string { return a.ID }

// CloneClaim returns a defensive copy of the claim.
func CloneClaim(c Claim) Claim {
	cp := c
	if c.IncidentDate != nil {
		d := *c.IncidentDate
		cp.IncidentDate = &d
	}
	return cp
}

// CloneItem returns a defensive copy of the item.
func CloneItem(i ClaimItem) ClaimItem { return i }

// CloneAttachment returns a defensive copy of the attachment.
func CloneAttachment(a Attachment) Attachment { return a }

// CloneItems returns a defensive copy of an item collection.
func CloneItems(items []ClaimItem) []ClaimItem {
	if items == nil {
		return nil
	}
	out := make([]ClaimItem, len(items))
	copy(out, items)
	return out
}

// CloneAttachments returns a defensive copy of an attachment collection.
func CloneAttachments(atts []Attachment) []Attachment {
	if atts == nil {
		return nil
	}
	out := make([]Attachment, len(atts))
	copy(out, atts)
	return out
}
