package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"claimstack/pkg/domain"
)

// APIError is a non-2xx response from the claims API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// API is the HTTP transport for the claims server. It carries no cache
// awareness; Client layers the optimistic protocol on top.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI constructs a transport against baseURL. A nil httpClient falls back
// to http.DefaultClient; the executor bounds call duration, not the transport.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (a *API) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
		return APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (a *API) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	return a.do(ctx, method, path, body, "application/json", out)
}

// GetClaim fetches one claim.
func (a *API) GetClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	var out domain.Claim
	err := a.doJSON(ctx, http.MethodGet, "/api/claims/"+url.PathEscape(claimID), nil, &out)
	return out, err
}

// ListClaims fetches all claims.
func (a *API) ListClaims(ctx context.Context) ([]domain.Claim, error) {
	var out []domain.Claim
	err := a.doJSON(ctx, http.MethodGet, "/api/claims", nil, &out)
	return out, err
}

// CreateClaim creates a claim server-side.
func (a *API) CreateClaim(ctx context.Context, claim domain.Claim) (domain.Claim, error) {
	var out domain.Claim
	err := a.doJSON(ctx, http.MethodPost, "/api/claims", claim, &out)
	return out, err
}

// UpdateClaim patches claim fields. Nil pointers leave fields unchanged.
func (a *API) UpdateClaim(ctx context.Context, claimID string, patch ClaimPatch) (domain.Claim, error) {
	var out domain.Claim
	err := a.doJSON(ctx, http.MethodPatch, "/api/claims/"+url.PathEscape(claimID), patch, &out)
	return out, err
}

// DeleteClaim removes a claim and everything under it.
func (a *API) DeleteClaim(ctx context.Context, claimID string) error {
	return a.doJSON(ctx, http.MethodDelete, "/api/claims/"+url.PathEscape(claimID), nil, nil)
}

// ListItems fetches a claim's items in position order.
func (a *API) ListItems(ctx context.Context, claimID string) ([]domain.ClaimItem, error) {
	var out []domain.ClaimItem
	err := a.doJSON(ctx, http.MethodGet, "/api/claims/"+url.PathEscape(claimID)+"/items", nil, &out)
	return out, err
}

// CreateItem creates a line item under a claim.
func (a *API) CreateItem(ctx context.Context, claimID string, item domain.ClaimItem) (domain.ClaimItem, error) {
	var out domain.ClaimItem
	err := a.doJSON(ctx, http.MethodPost, "/api/claims/"+url.PathEscape(claimID)+"/items", item, &out)
	return out, err
}

// UpdateItem patches item fields. Nil pointers leave fields unchanged.
func (a *API) UpdateItem(ctx context.Context, itemID string, patch ItemPatch) (domain.ClaimItem, error) {
	var out domain.ClaimItem
	err := a.doJSON(ctx, http.MethodPatch, "/api/items/"+url.PathEscape(itemID), patch, &out)
	return out, err
}

// DeleteItem removes a line item.
func (a *API) DeleteItem(ctx context.Context, itemID string) error {
	return a.doJSON(ctx, http.MethodDelete, "/api/items/"+url.PathEscape(itemID), nil, nil)
}

// ReorderItems submits a claim's full item order and returns the confirmed list.
func (a *API) ReorderItems(ctx context.Context, claimID string, itemIDs []string) ([]domain.ClaimItem, error) {
	in := struct {
		ItemIDs []string `json:"item_ids"`
	}{ItemIDs: itemIDs}
	var out []domain.ClaimItem
	err := a.doJSON(ctx, http.MethodPost, "/api/claims/"+url.PathEscape(claimID)+"/items/reorder", in, &out)
	return out, err
}

// ListAttachments fetches an item's attachments.
func (a *API) ListAttachments(ctx context.Context, itemID string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	err := a.doJSON(ctx, http.MethodGet, "/api/items/"+url.PathEscape(itemID)+"/attachments", nil, &out)
	return out, err
}

// UploadAttachment streams a payload and returns the confirmed metadata record.
func (a *API) UploadAttachment(ctx context.Context, itemID, fileName, contentType string, payload io.Reader) (domain.Attachment, error) {
	path := "/api/items/" + url.PathEscape(itemID) + "/attachments?file_name=" + url.QueryEscape(fileName)
	var out domain.Attachment
	err := a.do(ctx, http.MethodPost, path, payload, contentType, &out)
	return out, err
}

// DeleteAttachment removes an attachment record and its payload.
func (a *API) DeleteAttachment(ctx context.Context, attachmentID string) error {
	return a.doJSON(ctx, http.MethodDelete, "/api/attachments/"+url.PathEscape(attachmentID), nil, nil)
}

// ClaimPatch carries the mutable claim fields for UpdateClaim.
type ClaimPatch struct {
	ClaimantName *string             `json:"claimant_name,omitempty"`
	PolicyNumber *string             `json:"policy_number,omitempty"`
	Status       *domain.ClaimStatus `json:"status,omitempty"`
}

// ItemPatch carries the mutable item fields for UpdateItem.
type ItemPatch struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	AmountCents *int64             `json:"amount_cents,omitempty"`
	Status      *domain.ItemStatus `json:"status,omitempty"`
}
