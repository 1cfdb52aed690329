// Package client is the caching claims API client. Reads go through the
// cache with fetch supersession; writes go through the optimistic executor,
// so the local view reflects every mutation immediately and rolls back
// verbatim when the server rejects it.
package client

import (
	"bytes"
	"context"
	"time"

	"claimstack/internal/cache"
	"claimstack/internal/optimistic"
	"claimstack/pkg/domain"
)

// Client couples the HTTP transport with a cache store and the mutation
// executor. One Client serves one user session; the cache it owns is the
// session's view of server state.
type Client struct {
	api   *API
	store *cache.Store
	exec  *optimistic.Executor
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	execOpts  []optimistic.Option
	storeOpts []cache.Option
}

// WithNotifier sets the sink for user-visible mutation notifications.
func WithNotifier(n optimistic.Notifier) Option {
	return func(c *clientConfig) { c.execOpts = append(c.execOpts, optimistic.WithNotifier(n)) }
}

// WithLogger injects a structured logger into the executor and the cache.
func WithLogger(l optimistic.Logger) Option {
	return func(c *clientConfig) {
		c.execOpts = append(c.execOpts, optimistic.WithLogger(l))
		if cl, ok := l.(cache.Logger); ok {
			c.storeOpts = append(c.storeOpts, cache.WithLogger(cl))
		}
	}
}

// WithMetrics records per-mutation outcomes through the recorder.
func WithMetrics(m optimistic.MetricsRecorder) Option {
	return func(c *clientConfig) { c.execOpts = append(c.execOpts, optimistic.WithMetrics(m)) }
}

// WithTimeout bounds every mutation's network call.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.execOpts = append(c.execOpts, optimistic.WithTimeout(d)) }
}

// New constructs a Client over the supplied transport.
func New(api *API, opts ...Option) *Client {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	store := cache.NewStore(cfg.storeOpts...)
	return &Client{
		api:   api,
		store: store,
		exec:  optimistic.NewExecutor(store, cfg.execOpts...),
	}
}

// Store exposes the cache for inspection, chiefly by tests and view code.
func (c *Client) Store() *cache.Store { return c.store }

// Claim returns the cached claim when present, fetching otherwise.
func (c *Client) Claim(ctx context.Context, claimID string) (domain.Claim, error) {
	key := ClaimKey(claimID)
	if v, ok := c.store.Get(key); ok {
		if claim, ok := v.(domain.Claim); ok {
			return claim, nil
		}
	}
	return c.RefreshClaim(ctx, claimID)
}

// RefreshClaim fetches the claim from the server and stores it unless the
// fetch was superseded by a mutation in the meantime.
func (c *Client) RefreshClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	key := ClaimKey(claimID)
	gen := c.store.BeginFetch(key)
	claim, err := c.api.GetClaim(ctx, claimID)
	if err != nil {
		return domain.Claim{}, err
	}
	c.store.CompleteFetch(key, gen, claim)
	return claim, nil
}

// Items returns the cached item list when present, fetching otherwise.
func (c *Client) Items(ctx context.Context, claimID string) ([]domain.ClaimItem, error) {
	if items, ok := cachedItems(c.store, claimID); ok {
		return items, nil
	}
	return c.RefreshItems(ctx, claimID)
}

// RefreshItems fetches the claim's items from the server and stores them
// unless the fetch was superseded by a mutation in the meantime. The fetched
// list is returned either way.
func (c *Client) RefreshItems(ctx context.Context, claimID string) ([]domain.ClaimItem, error) {
	key := ItemsKey(claimID)
	gen := c.store.BeginFetch(key)
	items, err := c.api.ListItems(ctx, claimID)
	if err != nil {
		return nil, err
	}
	c.store.CompleteFetch(key, gen, items)
	return items, nil
}

// Attachments returns the cached attachment list when present, fetching otherwise.
func (c *Client) Attachments(ctx context.Context, itemID string) ([]domain.Attachment, error) {
	if atts, ok := cachedAttachments(c.store, itemID); ok {
		return atts, nil
	}
	return c.RefreshAttachments(ctx, itemID)
}

// RefreshAttachments fetches an item's attachments from the server and stores
// them unless the fetch was superseded by a mutation in the meantime.
func (c *Client) RefreshAttachments(ctx context.Context, itemID string) ([]domain.Attachment, error) {
	key := AttachmentsKey(itemID)
	gen := c.store.BeginFetch(key)
	atts, err := c.api.ListAttachments(ctx, itemID)
	if err != nil {
		return nil, err
	}
	c.store.CompleteFetch(key, gen, atts)
	return atts, nil
}

// ItemDraft carries the user-entered fields for a new line item.
type ItemDraft struct {
	Title       string
	Description string
	AmountCents int64
}

// CreateItem appends a new line item. A placeholder item with a reserved
// temporary identifier appears in the cached list immediately and is swapped
// for the server's record on confirmation.
func (c *Client) CreateItem(ctx context.Context, claimID string, draft ItemDraft) (domain.ClaimItem, error) {
	m := optimistic.Mutation[ItemDraft, domain.ClaimItem]{
		Name: "create_item",
		OnMutate: func(_ context.Context, in ItemDraft, mctx *optimistic.Context) error {
			key := ItemsKey(claimID)
			mctx.Capture(key)
			mctx.TempID = domain.NewTempID()
			now := time.Now().UTC()
			c.store.Update(key, func(prev any) any {
				items := itemList(prev)
				temp := domain.ClaimItem{
					ID:          mctx.TempID,
					Origin:      domain.OriginOptimistic,
					ClaimID:     claimID,
					Title:       in.Title,
					Description: in.Description,
					AmountCents: in.AmountCents,
					Position:    len(items),
					Status:      domain.ItemStatusPending,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				return append(domain.CloneItems(items), temp)
			})
			return nil
		},
		Execute: func(ctx context.Context, in ItemDraft) (domain.ClaimItem, error) {
			return c.api.CreateItem(ctx, claimID, domain.ClaimItem{
				Title:       in.Title,
				Description: in.Description,
				AmountCents: in.AmountCents,
			})
		},
		OnSuccess: func(_ ItemDraft, confirmed domain.ClaimItem, mctx *optimistic.Context) {
			c.store.Update(ItemsKey(claimID), func(prev any) any {
				return optimistic.Replace(itemList(prev), mctx.TempID, confirmed)
			})
		},
		FailureMessage: func(in ItemDraft, _ error) string {
			return "Could not add item " + in.Title
		},
	}
	return optimistic.Run(ctx, c.exec, m, draft)
}

// UpdateItem patches a line item. The cached entry reflects the patch
// immediately; the server's record replaces it on confirmation.
func (c *Client) UpdateItem(ctx context.Context, claimID, itemID string, patch ItemPatch) (domain.ClaimItem, error) {
	m := optimistic.Mutation[ItemPatch, domain.ClaimItem]{
		Name: "update_item",
		OnMutate: func(_ context.Context, in ItemPatch, mctx *optimistic.Context) error {
			key := ItemsKey(claimID)
			mctx.Capture(key)
			c.store.Update(key, func(prev any) any {
				items := domain.CloneItems(itemList(prev))
				for i := range items {
					if items[i].ID != itemID {
						continue
					}
					applyItemPatch(&items[i], in)
					items[i].UpdatedAt = time.Now().UTC()
				}
				return items
			})
			return nil
		},
		Execute: func(ctx context.Context, in ItemPatch) (domain.ClaimItem, error) {
			return c.api.UpdateItem(ctx, itemID, in)
		},
		OnSuccess: func(_ ItemPatch, confirmed domain.ClaimItem, _ *optimistic.Context) {
			c.store.Update(ItemsKey(claimID), func(prev any) any {
				return optimistic.Replace(itemList(prev), itemID, confirmed)
			})
		},
		FailureMessage: func(ItemPatch, error) string {
			return "Could not save item changes"
		},
	}
	return optimistic.Run(ctx, c.exec, m, patch)
}

// DeleteItem removes a line item. It disappears from the cached list
// immediately, along with its cached attachments; both reappear on failure.
func (c *Client) DeleteItem(ctx context.Context, claimID, itemID string) error {
	m := optimistic.Mutation[string, struct{}]{
		Name: "delete_item",
		OnMutate: func(_ context.Context, id string, mctx *optimistic.Context) error {
			itemsKey := ItemsKey(claimID)
			attsKey := AttachmentsKey(id)
			mctx.Capture(itemsKey)
			mctx.Capture(attsKey)
			c.store.Update(itemsKey, func(prev any) any {
				return optimistic.Remove(itemList(prev), id)
			})
			c.store.Invalidate(attsKey)
			return nil
		},
		Execute: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, c.api.DeleteItem(ctx, id)
		},
		FailureMessage: func(string, error) string {
			return "Could not delete item"
		},
	}
	_, err := optimistic.Run(ctx, c.exec, m, itemID)
	return err
}

// ReorderItems rewrites the claim's item order. The cached list shows the new
// order immediately and snaps back on failure.
func (c *Client) ReorderItems(ctx context.Context, claimID string, orderedIDs []string) ([]domain.ClaimItem, error) {
	m := optimistic.Mutation[[]string, []domain.ClaimItem]{
		Name: "reorder_items",
		OnMutate: func(_ context.Context, ids []string, mctx *optimistic.Context) error {
			key := ItemsKey(claimID)
			mctx.Capture(key)
			c.store.Update(key, func(prev any) any {
				return reorderLocal(itemList(prev), ids)
			})
			return nil
		},
		Execute: func(ctx context.Context, ids []string) ([]domain.ClaimItem, error) {
			return c.api.ReorderItems(ctx, claimID, ids)
		},
		OnSuccess: func(_ []string, confirmed []domain.ClaimItem, _ *optimistic.Context) {
			c.store.Set(ItemsKey(claimID), confirmed)
		},
		FailureMessage: func([]string, error) string {
			return "Could not reorder items"
		},
	}
	return optimistic.Run(ctx, c.exec, m, orderedIDs)
}

// UpdateClaim patches claim fields. The cached claim reflects the patch
// immediately; the server's record replaces it on confirmation.
func (c *Client) UpdateClaim(ctx context.Context, claimID string, patch ClaimPatch) (domain.Claim, error) {
	m := optimistic.Mutation[ClaimPatch, domain.Claim]{
		Name: "update_claim",
		OnMutate: func(_ context.Context, in ClaimPatch, mctx *optimistic.Context) error {
			key := ClaimKey(claimID)
			mctx.Capture(key)
			c.store.Update(key, func(prev any) any {
				claim, ok := prev.(domain.Claim)
				if !ok {
					return prev
				}
				claim = domain.CloneClaim(claim)
				applyClaimPatch(&claim, in)
				claim.UpdatedAt = time.Now().UTC()
				return claim
			})
			return nil
		},
		Execute: func(ctx context.Context, in ClaimPatch) (domain.Claim, error) {
			return c.api.UpdateClaim(ctx, claimID, in)
		},
		OnSuccess: func(_ ClaimPatch, confirmed domain.Claim, _ *optimistic.Context) {
			c.store.Set(ClaimKey(claimID), confirmed)
		},
		FailureMessage: func(ClaimPatch, error) string {
			return "Could not save claim changes"
		},
	}
	return optimistic.Run(ctx, c.exec, m, patch)
}

// AttachmentUpload carries everything needed to attach a file to an item.
// Preview is an optional client-local preview handle; it is released when
// the mutation settles, on both paths.
type AttachmentUpload struct {
	ItemID      string
	FileName    string
	ContentType string
	Payload     []byte
	PreviewURL  string
	Preview     optimistic.Resource
}

// AddAttachment uploads a payload. A placeholder attachment carrying the
// local preview URL appears in the cached list immediately; the server's
// record, preview-less, replaces it on confirmation.
func (c *Client) AddAttachment(ctx context.Context, up AttachmentUpload) (domain.Attachment, error) {
	m := optimistic.Mutation[AttachmentUpload, domain.Attachment]{
		Name: "add_attachment",
		OnMutate: func(_ context.Context, in AttachmentUpload, mctx *optimistic.Context) error {
			key := AttachmentsKey(in.ItemID)
			mctx.Capture(key)
			mctx.TempID = domain.NewTempID()
			mctx.AddResource(in.Preview)
			now := time.Now().UTC()
			c.store.Update(key, func(prev any) any {
				temp := domain.Attachment{
					ID:          mctx.TempID,
					Origin:      domain.OriginOptimistic,
					ItemID:      in.ItemID,
					FileName:    in.FileName,
					ContentType: in.ContentType,
					SizeBytes:   int64(len(in.Payload)),
					PreviewURL:  in.PreviewURL,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				return append(domain.CloneAttachments(attachmentList(prev)), temp)
			})
			return nil
		},
		Execute: func(ctx context.Context, in AttachmentUpload) (domain.Attachment, error) {
			return c.api.UploadAttachment(ctx, in.ItemID, in.FileName, in.ContentType, bytes.NewReader(in.Payload))
		},
		OnSuccess: func(in AttachmentUpload, confirmed domain.Attachment, mctx *optimistic.Context) {
			c.store.Update(AttachmentsKey(in.ItemID), func(prev any) any {
				return optimistic.Replace(attachmentList(prev), mctx.TempID, confirmed)
			})
		},
		FailureMessage: func(in AttachmentUpload, _ error) string {
			return "Could not upload " + in.FileName
		},
	}
	return optimistic.Run(ctx, c.exec, m, up)
}

// DeleteAttachment removes an attachment. It disappears from the cached list
// immediately and reappears on failure.
func (c *Client) DeleteAttachment(ctx context.Context, itemID, attachmentID string) error {
	m := optimistic.Mutation[string, struct{}]{
		Name: "delete_attachment",
		OnMutate: func(_ context.Context, id string, mctx *optimistic.Context) error {
			key := AttachmentsKey(itemID)
			mctx.Capture(key)
			c.store.Update(key, func(prev any) any {
				return optimistic.Remove(attachmentList(prev), id)
			})
			return nil
		},
		Execute: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, c.api.DeleteAttachment(ctx, id)
		},
		FailureMessage: func(string, error) string {
			return "Could not delete attachment"
		},
	}
	_, err := optimistic.Run(ctx, c.exec, m, attachmentID)
	return err
}

func cachedItems(s *cache.Store, claimID string) ([]domain.ClaimItem, bool) {
	v, ok := s.Get(ItemsKey(claimID))
	if !ok {
		return nil, false
	}
	items, ok := v.([]domain.ClaimItem)
	return items, ok
}

func cachedAttachments(s *cache.Store, itemID string) ([]domain.Attachment, bool) {
	v, ok := s.Get(AttachmentsKey(itemID))
	if !ok {
		return nil, false
	}
	atts, ok := v.([]domain.Attachment)
	return atts, ok
}

func itemList(v any) []domain.ClaimItem {
	items, _ := v.([]domain.ClaimItem)
	return items
}

func attachmentList(v any) []domain.Attachment {
	atts, _ := v.([]domain.Attachment)
	return atts
}

func applyItemPatch(item *domain.ClaimItem, p ItemPatch) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.AmountCents != nil {
		item.AmountCents = *p.AmountCents
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
}

func applyClaimPatch(claim *domain.Claim, p ClaimPatch) {
	if p.ClaimantName != nil {
		claim.ClaimantName = *p.ClaimantName
	}
	if p.PolicyNumber != nil {
		claim.PolicyNumber = *p.PolicyNumber
	}
	if p.Status != nil {
		claim.Status = *p.Status
	}
}

// reorderLocal applies the requested order to the cached list: listed
// identifiers first in the given order, anything unlisted kept behind them in
// its prior relative order. Positions are rewritten to match.
func reorderLocal(items []domain.ClaimItem, orderedIDs []string) []domain.ClaimItem {
	if len(items) == 0 {
		return items
	}
	byID := make(map[string]domain.ClaimItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := make([]domain.ClaimItem, 0, len(items))
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if it, ok := byID[id]; ok {
			out = append(out, it)
			seen[id] = true
		}
	}
	for _, it := range items {
		if !seen[it.ID] {
			out = append(out, it)
		}
	}
	for i := range out {
		out[i].Position = i
	}
	return out
}
