package claims

import (
	"context"
	"time"

	"claimstack/pkg/domain"
)

// Store is the persistence surface the service operates on. MemoryStore is
// the canonical implementation; the sqlite and postgres drivers embed it and
// add durability.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) ([]domain.Change, error)
	GetClaim(id string) (domain.Claim, bool)
	ListClaims() []domain.Claim
	GetItem(id string) (domain.ClaimItem, bool)
	ItemsByClaim(claimID string) []domain.ClaimItem
	GetAttachment(id string) (domain.Attachment, bool)
	AttachmentsByItem(itemID string) []domain.Attachment
}

// Service exposes transactional claim operations with logging, metrics, and
// tracing around every write.
type Service struct {
	store   Store
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger injects a structured logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records per-operation outcomes through the recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer starts a span around every write operation.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() Store { return s.store }

func (s *Service) run(ctx context.Context, operation string, fn func(tx *Transaction) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := time.Now()
	_, err := s.store.RunInTransaction(ctx, fn)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	if err != nil {
		s.logger.Warn("operation failed", "operation", operation, "error", err)
		return err
	}
	s.logger.Debug("operation committed", "operation", operation)
	return nil
}

// CreateClaim persists a new claim.
func (s *Service) CreateClaim(ctx context.Context, claim domain.Claim) (domain.Claim, error) {
	var created domain.Claim
	err := s.run(ctx, "create_claim", func(tx *Transaction) error {
		var err error
		created, err = tx.CreateClaim(claim)
		return err
	})
	return created, err
}

// UpdateClaim mutates a claim using the provided mutator.
func (s *Service) UpdateClaim(ctx context.Context, id string, mutator func(*domain.Claim) error) (domain.Claim, error) {
	var updated domain.Claim
	err := s.run(ctx, "update_claim", func(tx *Transaction) error {
		var err error
		updated, err = tx.UpdateClaim(id, mutator)
		return err
	})
	return updated, err
}

// DeleteClaim removes a claim and everything under it.
func (s *Service) DeleteClaim(ctx context.Context, id string) error {
	return s.run(ctx, "delete_claim", func(tx *Transaction) error {
		return tx.DeleteClaim(id)
	})
}

// CreateItem persists a new line item.
func (s *Service) CreateItem(ctx context.Context, item domain.ClaimItem) (domain.ClaimItem, error) {
	var created domain.ClaimItem
	err := s.run(ctx, "create_item", func(tx *Transaction) error {
		var err error
		created, err = tx.CreateItem(item)
		return err
	})
	return created, err
}

// UpdateItem mutates a line item using the provided mutator.
func (s *Service) UpdateItem(ctx context.Context, id string, mutator func(*domain.ClaimItem) error) (domain.ClaimItem, error) {
	var updated domain.ClaimItem
	err := s.run(ctx, "update_item", func(tx *Transaction) error {
		var err error
		updated, err = tx.UpdateItem(id, mutator)
		return err
	})
	return updated, err
}

// DeleteItem removes a line item and its attachments.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.run(ctx, "delete_item", func(tx *Transaction) error {
		return tx.DeleteItem(id)
	})
}

// ReorderItems rewrites a claim's item order.
func (s *Service) ReorderItems(ctx context.Context, claimID string, orderedIDs []string) ([]domain.ClaimItem, error) {
	var reordered []domain.ClaimItem
	err := s.run(ctx, "reorder_items", func(tx *Transaction) error {
		var err error
		reordered, err = tx.ReorderItems(claimID, orderedIDs)
		return err
	})
	return reordered, err
}

// CreateAttachment persists attachment metadata.
func (s *Service) CreateAttachment(ctx context.Context, att domain.Attachment) (domain.Attachment, error) {
	var created domain.Attachment
	err := s.run(ctx, "create_attachment", func(tx *Transaction) error {
		var err error
		created, err = tx.CreateAttachment(att)
		return err
	})
	return created, err
}

// DeleteAttachment removes attachment metadata and returns the deleted record
// so callers can clean up the stored payload.
func (s *Service) DeleteAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	var deleted domain.Attachment
	err := s.run(ctx, "delete_attachment", func(tx *Transaction) error {
		var err error
		deleted, err = tx.DeleteAttachment(id)
		return err
	})
	return deleted, err
}

// GetClaim retrieves a claim by ID.
func (s *Service) GetClaim(ctx context.Context, id string) (domain.Claim, bool) {
	return s.store.GetClaim(id)
}

// ListClaims returns all claims ordered by creation time.
func (s *Service) ListClaims(ctx context.Context) []domain.Claim {
	return s.store.ListClaims()
}

// GetItem retrieves a line item by ID.
func (s *Service) GetItem(ctx context.Context, id string) (domain.ClaimItem, bool) {
	return s.store.GetItem(id)
}

// ItemsByClaim returns a claim's items ordered by position.
func (s *Service) ItemsByClaim(ctx context.Context, claimID string) []domain.ClaimItem {
	return s.store.ItemsByClaim(claimID)
}

// GetAttachment retrieves an attachment by ID.
func (s *Service) GetAttachment(ctx context.Context, id string) (domain.Attachment, bool) {
	return s.store.GetAttachment(id)
}

// AttachmentsByItem returns an item's attachments ordered by creation time.
func (s *Service) AttachmentsByItem(ctx context.Context, itemID string) []domain.Attachment {
	return s.store.AttachmentsByItem(itemID)
}
