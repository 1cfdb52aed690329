// Package claims implements the server-side claims domain: a transactional
// in-memory store and a service layer with observability hooks.
package claims

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"claimstack/pkg/domain"
)

type state struct {
	claims      map[string]domain.Claim
	items       map[string]domain.ClaimItem
	attachments map[string]domain.Attachment
}

func newState() state {
	return state{
		claims:      make(map[string]domain.Claim),
		items:       make(map[string]domain.ClaimItem),
		attachments: make(map[string]domain.Attachment),
	}
}

func (s state) clone() state {
	cloned := newState()
	for k, v := range s.claims {
		cloned.claims[k] = domain.CloneClaim(v)
	}
	for k, v := range s.items {
		cloned.items[k] = domain.CloneItem(v)
	}
	for k, v := range s.attachments {
		cloned.attachments[k] = domain.CloneAttachment(v)
	}
	return cloned
}

// NotFoundError reports a reference to an entity that does not exist.
type NotFoundError struct {
	Entity domain.EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ValidationError reports a rejected entity field.
type ValidationError struct {
	Entity domain.EntityType
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason)
}

// MemoryStore provides an in-memory transactional store for the claims domain.
type MemoryStore struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	store   *MemoryStore
	state   state
	changes []domain.Change
	now     time.Time
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is committed only when fn returns nil; the recorded
// changes are returned for auditing.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) ([]domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return nil, err
	}

	s.state = tx.state
	return tx.changes, nil
}

func (tx *Transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// CreateClaim stores a new claim within the transaction. Server-issued
// identifiers always replace whatever the caller supplied.
func (tx *Transaction) CreateClaim(c domain.Claim) (domain.Claim, error) {
	if c.ClaimantName == "" {
		return domain.Claim{}, ValidationError{Entity: domain.EntityClaim, Reason: "claimant name required"}
	}
	c.ID = domain.NewID()
	c.Origin = domain.OriginConfirmed
	if c.Number == "" {
		c.Number = "CLM-" + c.ID[:8]
	}
	if c.Status == "" {
		c.Status = domain.ClaimStatusDraft
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.claims[c.ID] = domain.CloneClaim(c)
	tx.recordChange(domain.Change{Entity: domain.EntityClaim, Action: domain.ActionCreate, After: domain.CloneClaim(c)})
	return domain.CloneClaim(c), nil
}

// UpdateClaim mutates a claim using the provided mutator function.
func (tx *Transaction) UpdateClaim(id string, mutator func(*domain.Claim) error) (domain.Claim, error) {
	current, ok := tx.state.claims[id]
	if !ok {
		return domain.Claim{}, NotFoundError{Entity: domain.EntityClaim, ID: id}
	}
	before := domain.CloneClaim(current)
	if err := mutator(&current); err != nil {
		return domain.Claim{}, err
	}
	current.ID = id
	current.Origin = domain.OriginConfirmed
	current.UpdatedAt = tx.now
	tx.state.claims[id] = domain.CloneClaim(current)
	tx.recordChange(domain.Change{Entity: domain.EntityClaim, Action: domain.ActionUpdate, Before: before, After: domain.CloneClaim(current)})
	return domain.CloneClaim(current), nil
}

// DeleteClaim removes a claim along with its items and their attachments.
func (tx *Transaction) DeleteClaim(id string) error {
	current, ok := tx.state.claims[id]
	if !ok {
		return NotFoundError{Entity: domain.EntityClaim, ID: id}
	}
	for itemID, item := range tx.state.items {
		if item.ClaimID != id {
			continue
		}
		tx.deleteAttachmentsOf(itemID)
		delete(tx.state.items, itemID)
		tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: domain.CloneItem(item)})
	}
	delete(tx.state.claims, id)
	tx.recordChange(domain.Change{Entity: domain.EntityClaim, Action: domain.ActionDelete, Before: domain.CloneClaim(current)})
	return nil
}

// CreateItem stores a new line item appended at the end of its claim.
func (tx *Transaction) CreateItem(it domain.ClaimItem) (domain.ClaimItem, error) {
	if _, ok := tx.state.claims[it.ClaimID]; !ok {
		return domain.ClaimItem{}, NotFoundError{Entity: domain.EntityClaim, ID: it.ClaimID}
	}
	if it.Title == "" {
		return domain.ClaimItem{}, ValidationError{Entity: domain.EntityItem, Reason: "title required"}
	}
	if it.AmountCents < 0 {
		return domain.ClaimItem{}, ValidationError{Entity: domain.EntityItem, Reason: "amount must not be negative"}
	}
	it.ID = domain.NewID()
	it.Origin = domain.OriginConfirmed
	if it.Status == "" {
		it.Status = domain.ItemStatusPending
	}
	it.Position = len(tx.itemIDsByClaim(it.ClaimID))
	it.CreatedAt = tx.now
	it.UpdatedAt = tx.now
	tx.state.items[it.ID] = domain.CloneItem(it)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: domain.CloneItem(it)})
	return domain.CloneItem(it), nil
}

// UpdateItem mutates a line item using the provided mutator function.
// Position changes go through ReorderItems, never through the mutator.
func (tx *Transaction) UpdateItem(id string, mutator func(*domain.ClaimItem) error) (domain.ClaimItem, error) {
	current, ok := tx.state.items[id]
	if !ok {
		return domain.ClaimItem{}, NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	before := domain.CloneItem(current)
	if err := mutator(&current); err != nil {
		return domain.ClaimItem{}, err
	}
	if current.Title == "" {
		return domain.ClaimItem{}, ValidationError{Entity: domain.EntityItem, Reason: "title required"}
	}
	if current.AmountCents < 0 {
		return domain.ClaimItem{}, ValidationError{Entity: domain.EntityItem, Reason: "amount must not be negative"}
	}
	current.ID = id
	current.ClaimID = before.ClaimID
	current.Position = before.Position
	current.Origin = domain.OriginConfirmed
	current.UpdatedAt = tx.now
	tx.state.items[id] = domain.CloneItem(current)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: domain.CloneItem(current)})
	return domain.CloneItem(current), nil
}

// DeleteItem removes a line item and its attachments, compacting the
// positions of the claim's remaining items.
func (tx *Transaction) DeleteItem(id string) error {
	current, ok := tx.state.items[id]
	if !ok {
		return NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	tx.deleteAttachmentsOf(id)
	delete(tx.state.items, id)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: domain.CloneItem(current)})

	for i, itemID := range tx.itemIDsByClaim(current.ClaimID) {
		it := tx.state.items[itemID]
		if it.Position != i {
			it.Position = i
			it.UpdatedAt = tx.now
			tx.state.items[itemID] = it
		}
	}
	return nil
}

// ReorderItems rewrites the positions of a claim's items to match
// orderedIDs, which must be an exact permutation of the current item set.
func (tx *Transaction) ReorderItems(claimID string, orderedIDs []string) ([]domain.ClaimItem, error) {
	if _, ok := tx.state.claims[claimID]; !ok {
		return nil, NotFoundError{Entity: domain.EntityClaim, ID: claimID}
	}
	existing := tx.itemIDsByClaim(claimID)
	if len(orderedIDs) != len(existing) {
		return nil, ValidationError{Entity: domain.EntityItem, Reason: fmt.Sprintf("reorder lists %d items, claim has %d", len(orderedIDs), len(existing))}
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		item, ok := tx.state.items[id]
		if !ok || item.ClaimID != claimID {
			return nil, ValidationError{Entity: domain.EntityItem, Reason: fmt.Sprintf("item %q does not belong to claim", id)}
		}
		if seen[id] {
			return nil, ValidationError{Entity: domain.EntityItem, Reason: fmt.Sprintf("item %q listed twice", id)}
		}
		seen[id] = true
	}
	out := make([]domain.ClaimItem, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		item := tx.state.items[id]
		if item.Position != i {
			before := domain.CloneItem(item)
			item.Position = i
			item.UpdatedAt = tx.now
			tx.state.items[id] = item
			tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: domain.CloneItem(item)})
		}
		out = append(out, domain.CloneItem(item))
	}
	return out, nil
}

// CreateAttachment stores attachment metadata for an existing item.
func (tx *Transaction) CreateAttachment(a domain.Attachment) (domain.Attachment, error) {
	if _, ok := tx.state.items[a.ItemID]; !ok {
		return domain.Attachment{}, NotFoundError{Entity: domain.EntityItem, ID: a.ItemID}
	}
	if a.FileName == "" {
		return domain.Attachment{}, ValidationError{Entity: domain.EntityAttachment, Reason: "file name required"}
	}
	a.ID = domain.NewID()
	a.Origin = domain.OriginConfirmed
	a.PreviewURL = ""
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.attachments[a.ID] = domain.CloneAttachment(a)
	tx.recordChange(domain.Change{Entity: domain.EntityAttachment, Action: domain.ActionCreate, After: domain.CloneAttachment(a)})
	return domain.CloneAttachment(a), nil
}

// DeleteAttachment removes attachment metadata.
func (tx *Transaction) DeleteAttachment(id string) (domain.Attachment, error) {
	current, ok := tx.state.attachments[id]
	if !ok {
		return domain.Attachment{}, NotFoundError{Entity: domain.EntityAttachment, ID: id}
	}
	delete(tx.state.attachments, id)
	tx.recordChange(domain.Change{Entity: domain.EntityAttachment, Action: domain.ActionDelete, Before: domain.CloneAttachment(current)})
	return domain.CloneAttachment(current), nil
}

// FindClaim retrieves a claim by ID from the transaction state.
func (tx *Transaction) FindClaim(id string) (domain.Claim, bool) {
	c, ok := tx.state.claims[id]
	if !ok {
		return domain.Claim{}, false
	}
	return domain.CloneClaim(c), true
}

// FindItem retrieves a line item by ID from the transaction state.
func (tx *Transaction) FindItem(id string) (domain.ClaimItem, bool) {
	it, ok := tx.state.items[id]
	if !ok {
		return domain.ClaimItem{}, false
	}
	return domain.CloneItem(it), true
}

// FindAttachment retrieves an attachment by ID from the transaction state.
func (tx *Transaction) FindAttachment(id string) (domain.Attachment, bool) {
	a, ok := tx.state.attachments[id]
	if !ok {
		return domain.Attachment{}, false
	}
	return domain.CloneAttachment(a), true
}

func (tx *Transaction) deleteAttachmentsOf(itemID string) {
	for attID, att := range tx.state.attachments {
		if att.ItemID != itemID {
			continue
		}
		delete(tx.state.attachments, attID)
		tx.recordChange(domain.Change{Entity: domain.EntityAttachment, Action: domain.ActionDelete, Before: domain.CloneAttachment(att)})
	}
}

func (tx *Transaction) itemIDsByClaim(claimID string) []string {
	type pos struct {
		id       string
		position int
	}
	var ordered []pos
	for id, item := range tx.state.items {
		if item.ClaimID == claimID {
			ordered = append(ordered, pos{id: id, position: item.Position})
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].position != ordered[j].position {
			return ordered[i].position < ordered[j].position
		}
		return ordered[i].id < ordered[j].id
	})
	out := make([]string, len(ordered))
	for i, p := range ordered {
		out[i] = p.id
	}
	return out
}

// Read helpers ---------------------------------------------------------------

// GetClaim retrieves a claim by ID from committed state.
func (s *MemoryStore) GetClaim(id string) (domain.Claim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.claims[id]
	if !ok {
		return domain.Claim{}, false
	}
	return domain.CloneClaim(c), true
}

// ListClaims returns all claims ordered by creation time.
func (s *MemoryStore) ListClaims() []domain.Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Claim, 0, len(s.state.claims))
	for _, c := range s.state.claims {
		out = append(out, domain.CloneClaim(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetItem retrieves a line item by ID from committed state.
func (s *MemoryStore) GetItem(id string) (domain.ClaimItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.state.items[id]
	if !ok {
		return domain.ClaimItem{}, false
	}
	return domain.CloneItem(it), true
}

// ItemsByClaim returns a claim's items ordered by position.
func (s *MemoryStore) ItemsByClaim(claimID string) []domain.ClaimItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClaimItem, 0)
	for _, it := range s.state.items {
		if it.ClaimID == claimID {
			out = append(out, domain.CloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetAttachment retrieves an attachment by ID from committed state.
func (s *MemoryStore) GetAttachment(id string) (domain.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.attachments[id]
	if !ok {
		return domain.Attachment{}, false
	}
	return domain.CloneAttachment(a), true
}

// AttachmentsByItem returns an item's attachments ordered by creation time.
func (s *MemoryStore) AttachmentsByItem(itemID string) []domain.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attachment, 0)
	for _, a := range s.state.attachments {
		if a.ItemID == itemID {
			out = append(out, domain.CloneAttachment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
