// Package server exposes the claims service as a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claimstack/internal/blob"
	"claimstack/internal/claims"
	"claimstack/pkg/domain"
)

// maxAttachmentBytes bounds a single uploaded payload.
const maxAttachmentBytes = 32 << 20

// Server routes claim API requests to the service and blob store.
type Server struct {
	service *claims.Service
	blobs   blob.Store
	logger  claims.Logger
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger injects a structured logger.
func WithLogger(l claims.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// New constructs a Server over the supplied service and blob store.
func New(service *claims.Service, blobs blob.Store, opts ...Option) *Server {
	s := &Server{service: service, blobs: blobs, logger: noopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/claims", s.handleListClaims)
	mux.HandleFunc("POST /api/claims", s.handleCreateClaim)
	mux.HandleFunc("GET /api/claims/{id}", s.handleGetClaim)
	mux.HandleFunc("PATCH /api/claims/{id}", s.handleUpdateClaim)
	mux.HandleFunc("DELETE /api/claims/{id}", s.handleDeleteClaim)

	mux.HandleFunc("GET /api/claims/{id}/items", s.handleListItems)
	mux.HandleFunc("POST /api/claims/{id}/items", s.handleCreateItem)
	mux.HandleFunc("POST /api/claims/{id}/items/reorder", s.handleReorderItems)
	mux.HandleFunc("PATCH /api/items/{id}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)

	mux.HandleFunc("GET /api/items/{id}/attachments", s.handleListAttachments)
	mux.HandleFunc("POST /api/items/{id}/attachments", s.handleUploadAttachment)
	mux.HandleFunc("DELETE /api/attachments/{id}", s.handleDeleteAttachment)
	mux.HandleFunc("GET /api/attachments/{id}/payload", s.handleAttachmentPayload)
	s.mux = mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var nf claims.NotFoundError
	var ve claims.ValidationError
	switch {
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.ListClaims(r.Context()))
}

func (s *Server) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	var in domain.Claim
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	created, err := s.service.CreateClaim(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	claim, ok := s.service.GetClaim(r.Context(), id)
	if !ok {
		s.writeError(w, claims.NotFoundError{Entity: domain.EntityClaim, ID: id})
		return
	}
	s.writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleUpdateClaim(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ClaimantName *string             `json:"claimant_name"`
		PolicyNumber *string             `json:"policy_number"`
		Status       *domain.ClaimStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	updated, err := s.service.UpdateClaim(r.Context(), r.PathValue("id"), func(c *domain.Claim) error {
		if in.ClaimantName != nil {
			c.ClaimantName = *in.ClaimantName
		}
		if in.PolicyNumber != nil {
			c.PolicyNumber = *in.PolicyNumber
		}
		if in.Status != nil {
			c.Status = *in.Status
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteClaim(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteClaim(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.service.GetClaim(r.Context(), id); !ok {
		s.writeError(w, claims.NotFoundError{Entity: domain.EntityClaim, ID: id})
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.ItemsByClaim(r.Context(), id))
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var in domain.ClaimItem
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	in.ClaimID = r.PathValue("id")
	created, err := s.service.CreateItem(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleReorderItems(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ItemIDs []string `json:"item_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	reordered, err := s.service.ReorderItems(r.Context(), r.PathValue("id"), in.ItemIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reordered)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title       *string            `json:"title"`
		Description *string            `json:"description"`
		AmountCents *int64             `json:"amount_cents"`
		Status      *domain.ItemStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	updated, err := s.service.UpdateItem(r.Context(), r.PathValue("id"), func(it *domain.ClaimItem) error {
		if in.Title != nil {
			it.Title = *in.Title
		}
		if in.Description != nil {
			it.Description = *in.Description
		}
		if in.AmountCents != nil {
			it.AmountCents = *in.AmountCents
		}
		if in.Status != nil {
			it.Status = *in.Status
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	atts := s.service.AttachmentsByItem(r.Context(), id)
	if err := s.service.DeleteItem(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	for _, att := range atts {
		s.deletePayload(r, att)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.service.GetItem(r.Context(), id); !ok {
		s.writeError(w, claims.NotFoundError{Entity: domain.EntityItem, ID: id})
		return
	}
	s.writeJSON(w, http.StatusOK, s.service.AttachmentsByItem(r.Context(), id))
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	fileName := r.URL.Query().Get("file_name")
	if fileName == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file_name query parameter required"})
		return
	}
	contentType := r.Header.Get("Content-Type")
	body := http.MaxBytesReader(w, r.Body, maxAttachmentBytes)
	defer func() { _ = body.Close() }()

	blobKey := blob.PayloadKey(domain.NewID())
	info, err := s.blobs.Put(r.Context(), blobKey, body, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"file_name": fileName, "item_id": itemID},
	})
	if err != nil {
		s.writeError(w, fmt.Errorf("store payload: %w", err))
		return
	}
	created, err := s.service.CreateAttachment(r.Context(), domain.Attachment{
		ItemID:      itemID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   info.Size,
		BlobKey:     blobKey,
	})
	if err != nil {
		// metadata rejected: the payload is orphaned unless removed here
		if _, delErr := s.blobs.Delete(r.Context(), blobKey); delErr != nil {
			s.logger.Warn("orphaned payload not removed", "key", blobKey, "error", delErr)
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.service.DeleteAttachment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deletePayload(r, deleted)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttachmentPayload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	att, ok := s.service.GetAttachment(r.Context(), id)
	if !ok {
		s.writeError(w, claims.NotFoundError{Entity: domain.EntityAttachment, ID: id})
		return
	}
	info, rc, err := s.blobs.Get(r.Context(), att.BlobKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "attachment payload missing"})
			return
		}
		s.writeError(w, fmt.Errorf("read payload: %w", err))
		return
	}
	defer func() { _ = rc.Close() }()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("stream payload", "key", att.BlobKey, "error", err)
	}
}

func (s *Server) deletePayload(r *http.Request, att domain.Attachment) {
	if att.BlobKey == "" {
		return
	}
	if _, err := s.blobs.Delete(r.Context(), att.BlobKey); err != nil {
		s.logger.Warn("payload not removed", "key", att.BlobKey, "error", err)
	}
}
