package claims

import (
	"context"
	"errors"
	"testing"

	"claimstack/pkg/domain"
)

func mustCreateClaim(t *testing.T, s *MemoryStore, name string) domain.Claim {
	t.Helper()
	var created domain.Claim
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		created, err = tx.CreateClaim(domain.Claim{ClaimantName: name})
		return err
	})
	if err != nil {
		t.Fatalf("create claim: %v", err)
	}
	return created
}

func mustCreateItem(t *testing.T, s *MemoryStore, claimID, title string) domain.ClaimItem {
	t.Helper()
	var created domain.ClaimItem
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		created, err = tx.CreateItem(domain.ClaimItem{ClaimID: claimID, Title: title, AmountCents: 1000})
		return err
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return created
}

func mustCreateAttachment(t *testing.T, s *MemoryStore, itemID, fileName string) domain.Attachment {
	t.Helper()
	var created domain.Attachment
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		created, err = tx.CreateAttachment(domain.Attachment{ItemID: itemID, FileName: fileName, SizeBytes: 42, BlobKey: "attachments/" + fileName})
		return err
	})
	if err != nil {
		t.Fatalf("create attachment: %v", err)
	}
	return created
}

func TestCreateClaimAssignsServerIdentity(t *testing.T) {
	s := NewMemoryStore()
	var created domain.Claim
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		created, err = tx.CreateClaim(domain.Claim{ID: "tmp-abc123", ClaimantName: "Dana Flores", Origin: domain.OriginOptimistic})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" || domain.IsTempID(created.ID) {
		t.Fatalf("server must replace temporary identifiers, got %q", created.ID)
	}
	if created.Origin != domain.OriginConfirmed {
		t.Fatalf("stored entities must be confirmed, got %q", created.Origin)
	}
	if created.Number == "" || created.Status != domain.ClaimStatusDraft {
		t.Fatalf("defaults not applied: %+v", created)
	}
}

func TestCreateClaimRequiresClaimantName(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		_, err := tx.CreateClaim(domain.Claim{})
		return err
	})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransactionRollbackDiscardsChanges(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")

	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		if _, err := tx.CreateItem(domain.ClaimItem{ClaimID: claim.ID, Title: "Laptop", AmountCents: 120000}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if items := s.ItemsByClaim(claim.ID); len(items) != 0 {
		t.Fatalf("rolled-back transaction leaked items: %v", items)
	}
}

func TestCreateItemAppendsPosition(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")

	first := mustCreateItem(t, s, claim.ID, "Laptop")
	second := mustCreateItem(t, s, claim.ID, "Monitor")

	if first.Position != 0 || second.Position != 1 {
		t.Fatalf("positions %d,%d want 0,1", first.Position, second.Position)
	}
	if first.Status != domain.ItemStatusPending {
		t.Fatalf("default status %q", first.Status)
	}
}

func TestCreateItemValidation(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")

	cases := []struct {
		name string
		item domain.ClaimItem
	}{
		{name: "unknown claim", item: domain.ClaimItem{ClaimID: "nope", Title: "x"}},
		{name: "missing title", item: domain.ClaimItem{ClaimID: claim.ID}},
		{name: "negative amount", item: domain.ClaimItem{ClaimID: claim.ID, Title: "x", AmountCents: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
				_, err := tx.CreateItem(tc.item)
				return err
			})
			if err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestUpdateItemPreservesOwnershipAndPosition(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")
	mustCreateItem(t, s, claim.ID, "Laptop")
	item := mustCreateItem(t, s, claim.ID, "Monitor")

	var updated domain.ClaimItem
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		updated, err = tx.UpdateItem(item.ID, func(it *domain.ClaimItem) error {
			it.Title = "Monitor 27\""
			it.ClaimID = "hijack"
			it.Position = 99
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ClaimID != claim.ID || updated.Position != 1 {
		t.Fatalf("ownership or position not preserved: %+v", updated)
	}
	if updated.Title != "Monitor 27\"" {
		t.Fatalf("title not applied: %+v", updated)
	}
}

func TestDeleteItemCascadesAndCompacts(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")
	first := mustCreateItem(t, s, claim.ID, "Laptop")
	second := mustCreateItem(t, s, claim.ID, "Monitor")
	third := mustCreateItem(t, s, claim.ID, "Keyboard")
	att := mustCreateAttachment(t, s, second.ID, "receipt.pdf")

	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		return tx.DeleteItem(second.ID)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.GetAttachment(att.ID); ok {
		t.Fatalf("attachments must be removed with their item")
	}
	items := s.ItemsByClaim(claim.ID)
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != third.ID {
		t.Fatalf("unexpected items %v", items)
	}
	if items[0].Position != 0 || items[1].Position != 1 {
		t.Fatalf("positions not compacted: %d,%d", items[0].Position, items[1].Position)
	}
}

func TestDeleteClaimCascades(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")
	item := mustCreateItem(t, s, claim.ID, "Laptop")
	att := mustCreateAttachment(t, s, item.ID, "receipt.pdf")

	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		return tx.DeleteClaim(claim.ID)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.GetClaim(claim.ID); ok {
		t.Fatalf("claim still present")
	}
	if _, ok := s.GetItem(item.ID); ok {
		t.Fatalf("item still present")
	}
	if _, ok := s.GetAttachment(att.ID); ok {
		t.Fatalf("attachment still present")
	}
}

func TestReorderItemsExactPermutation(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")
	a := mustCreateItem(t, s, claim.ID, "A")
	b := mustCreateItem(t, s, claim.ID, "B")
	c := mustCreateItem(t, s, claim.ID, "C")

	other := mustCreateClaim(t, s, "Riley Ito")
	foreign := mustCreateItem(t, s, other.ID, "Foreign")

	var reordered []domain.ClaimItem
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		reordered, err = tx.ReorderItems(claim.ID, []string{c.ID, a.ID, b.ID})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reordered[0].ID != c.ID || reordered[1].ID != a.ID || reordered[2].ID != b.ID {
		t.Fatalf("unexpected order %v", reordered)
	}
	for i, it := range reordered {
		if it.Position != i {
			t.Fatalf("position %d holds %d", i, it.Position)
		}
	}

	bad := [][]string{
		{a.ID, b.ID},                 // too short
		{a.ID, b.ID, c.ID, a.ID},     // too long
		{a.ID, a.ID, b.ID},           // duplicate
		{a.ID, b.ID, foreign.ID},     // wrong claim
		{a.ID, b.ID, "nonexistent1"}, // unknown
	}
	for _, ids := range bad {
		_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
			_, err := tx.ReorderItems(claim.ID, ids)
			return err
		})
		var ve ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("ids %v: expected validation error, got %v", ids, err)
		}
	}

	// failed reorders must leave the committed order untouched
	items := s.ItemsByClaim(claim.ID)
	if items[0].ID != c.ID || items[1].ID != a.ID || items[2].ID != b.ID {
		t.Fatalf("order disturbed by rejected reorder: %v", items)
	}
}

func TestCreateAttachmentClearsPreview(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")
	item := mustCreateItem(t, s, claim.ID, "Laptop")

	var created domain.Attachment
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		created, err = tx.CreateAttachment(domain.Attachment{
			ItemID:     item.ID,
			FileName:   "receipt.pdf",
			PreviewURL: "blob:local-preview",
			Origin:     domain.OriginOptimistic,
		})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.PreviewURL != "" {
		t.Fatalf("preview URLs are client-local and must not persist: %q", created.PreviewURL)
	}
	if created.Origin != domain.OriginConfirmed {
		t.Fatalf("stored attachment must be confirmed, got %q", created.Origin)
	}
}

func TestDeleteAttachmentReturnsRecord(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")
	item := mustCreateItem(t, s, claim.ID, "Laptop")
	att := mustCreateAttachment(t, s, item.ID, "receipt.pdf")

	var deleted domain.Attachment
	_, err := s.RunInTransaction(context.Background(), func(tx *Transaction) error {
		var err error
		deleted, err = tx.DeleteAttachment(att.ID)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted.BlobKey != att.BlobKey {
		t.Fatalf("deleted record must carry the blob key: %+v", deleted)
	}
	if _, ok := s.GetAttachment(att.ID); ok {
		t.Fatalf("attachment still present")
	}
}

func TestNotFoundErrors(t *testing.T) {
	s := NewMemoryStore()
	ops := []func(tx *Transaction) error{
		func(tx *Transaction) error { _, err := tx.UpdateClaim("missing", func(*domain.Claim) error { return nil }); return err },
		func(tx *Transaction) error { return tx.DeleteClaim("missing") },
		func(tx *Transaction) error {
			_, err := tx.UpdateItem("missing", func(*domain.ClaimItem) error { return nil })
			return err
		},
		func(tx *Transaction) error { return tx.DeleteItem("missing") },
		func(tx *Transaction) error { _, err := tx.DeleteAttachment("missing"); return err },
		func(tx *Transaction) error { _, err := tx.ReorderItems("missing", nil); return err },
	}
	for i, op := range ops {
		_, err := s.RunInTransaction(context.Background(), op)
		var nf NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("op %d: expected not-found error, got %v", i, err)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	claim := mustCreateClaim(t, s, "Dana Flores")
	item := mustCreateItem(t, s, claim.ID, "Laptop")
	mustCreateAttachment(t, s, item.ID, "receipt.pdf")

	snap := s.ExportState()
	restored := NewMemoryStore()
	restored.ImportState(snap)

	if _, ok := restored.GetClaim(claim.ID); !ok {
		t.Fatalf("claim lost in round trip")
	}
	items := restored.ItemsByClaim(claim.ID)
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("items lost in round trip: %v", items)
	}
	if atts := restored.AttachmentsByItem(item.ID); len(atts) != 1 {
		t.Fatalf("attachments lost in round trip: %v", atts)
	}
}
