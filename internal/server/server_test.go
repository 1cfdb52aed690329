package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"claimstack/internal/blob"
	"claimstack/internal/claims"
	"claimstack/pkg/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, blob.Store) {
	t.Helper()
	blobs := blob.NewMemory()
	svc := claims.NewService(claims.NewMemoryStore())
	ts := httptest.NewServer(New(svc, blobs).Handler())
	t.Cleanup(ts.Close)
	return ts, blobs
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func createClaim(t *testing.T, base string) domain.Claim {
	t.Helper()
	var claim domain.Claim
	resp := doJSON(t, http.MethodPost, base+"/api/claims", domain.Claim{ClaimantName: "Dana Flores"}, &claim)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create claim status %d", resp.StatusCode)
	}
	return claim
}

func createItem(t *testing.T, base, claimID, title string) domain.ClaimItem {
	t.Helper()
	var item domain.ClaimItem
	resp := doJSON(t, http.MethodPost, base+"/api/claims/"+claimID+"/items",
		domain.ClaimItem{Title: title, AmountCents: 5000}, &item)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item status %d", resp.StatusCode)
	}
	return item
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestClaimLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	claim := createClaim(t, ts.URL)
	if claim.ID == "" || claim.Origin != domain.OriginConfirmed {
		t.Fatalf("unexpected claim %+v", claim)
	}

	var fetched domain.Claim
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/claims/"+claim.ID, nil, &fetched)
	if resp.StatusCode != http.StatusOK || fetched.ID != claim.ID {
		t.Fatalf("get claim: status %d, %+v", resp.StatusCode, fetched)
	}

	status := domain.ClaimStatusSubmitted
	var updated domain.Claim
	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/claims/"+claim.ID,
		map[string]any{"status": status}, &updated)
	if resp.StatusCode != http.StatusOK || updated.Status != status {
		t.Fatalf("patch claim: status %d, %+v", resp.StatusCode, updated)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/claims/"+claim.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete claim status %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/claims/"+claim.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted claim still reachable: %d", resp.StatusCode)
	}
}

func TestCreateClaimValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/claims", domain.Claim{}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
}

func TestItemEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	claim := createClaim(t, ts.URL)
	a := createItem(t, ts.URL, claim.ID, "Laptop")
	b := createItem(t, ts.URL, claim.ID, "Monitor")

	var items []domain.ClaimItem
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/claims/"+claim.ID+"/items", nil, &items)
	if resp.StatusCode != http.StatusOK || len(items) != 2 {
		t.Fatalf("list items: status %d, %v", resp.StatusCode, items)
	}
	if items[0].ID != a.ID || items[1].ID != b.ID {
		t.Fatalf("items out of order: %v", items)
	}

	amount := int64(9900)
	var updated domain.ClaimItem
	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/items/"+a.ID,
		map[string]any{"amount_cents": amount}, &updated)
	if resp.StatusCode != http.StatusOK || updated.AmountCents != amount {
		t.Fatalf("patch item: status %d, %+v", resp.StatusCode, updated)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/claims/"+claim.ID+"/items/reorder",
		map[string]any{"item_ids": []string{b.ID, a.ID}}, &items)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reorder status %d", resp.StatusCode)
	}
	if items[0].ID != b.ID || items[1].ID != a.ID {
		t.Fatalf("reorder not applied: %v", items)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/claims/"+claim.ID+"/items/reorder",
		map[string]any{"item_ids": []string{b.ID}}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("partial reorder status %d, want 422", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/items/"+a.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete item status %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/claims/"+claim.ID+"/items", nil, &items)
	if resp.StatusCode != http.StatusOK || len(items) != 1 || items[0].Position != 0 {
		t.Fatalf("positions not compacted after delete: %v", items)
	}
}

func TestAttachmentUploadDownloadDelete(t *testing.T) {
	ts, blobs := newTestServer(t)
	claim := createClaim(t, ts.URL)
	item := createItem(t, ts.URL, claim.ID, "Laptop")

	payload := []byte("%PDF-1.4 receipt")
	url := fmt.Sprintf("%s/api/items/%s/attachments?file_name=receipt.pdf", ts.URL, item.ID)
	resp, err := http.Post(url, "application/pdf", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status %d", resp.StatusCode)
	}
	var att domain.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		t.Fatalf("decode attachment: %v", err)
	}
	if att.SizeBytes != int64(len(payload)) || att.BlobKey == "" {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if att.PreviewURL != "" {
		t.Fatalf("server records must not carry preview URLs: %+v", att)
	}

	dl, err := http.Get(ts.URL + "/api/attachments/" + att.ID + "/payload")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	body, _ := io.ReadAll(dl.Body)
	if dl.StatusCode != http.StatusOK || !bytes.Equal(body, payload) {
		t.Fatalf("download status %d body %q", dl.StatusCode, body)
	}
	if ct := dl.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, "receipt.pdf") {
		t.Fatalf("content disposition %q", cd)
	}

	del := doJSON(t, http.MethodDelete, ts.URL+"/api/attachments/"+att.ID, nil, nil)
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", del.StatusCode)
	}
	if _, err := blobs.Head(t.Context(), att.BlobKey); err == nil {
		t.Fatalf("payload must be removed with the record")
	}
}

func TestAttachmentPayloadMissingReturns404(t *testing.T) {
	ts, blobs := newTestServer(t)
	claim := createClaim(t, ts.URL)
	item := createItem(t, ts.URL, claim.ID, "Laptop")

	url := fmt.Sprintf("%s/api/items/%s/attachments?file_name=receipt.pdf", ts.URL, item.ID)
	resp, err := http.Post(url, "application/pdf", strings.NewReader("body"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var att domain.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		t.Fatalf("decode attachment: %v", err)
	}

	// the record survives but its payload is gone from storage
	if _, err := blobs.Delete(t.Context(), att.BlobKey); err != nil {
		t.Fatalf("remove payload: %v", err)
	}
	dl, err := http.Get(ts.URL + "/api/attachments/" + att.ID + "/payload")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", dl.StatusCode)
	}
}

func TestUploadAttachmentRequiresFileName(t *testing.T) {
	ts, _ := newTestServer(t)
	claim := createClaim(t, ts.URL)
	item := createItem(t, ts.URL, claim.ID, "Laptop")

	resp, err := http.Post(ts.URL+"/api/items/"+item.ID+"/attachments", "application/pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestUploadAttachmentUnknownItemCleansPayload(t *testing.T) {
	ts, blobs := newTestServer(t)

	url := ts.URL + "/api/items/missing/attachments?file_name=receipt.pdf"
	resp, err := http.Post(url, "application/pdf", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
	infos, err := blobs.List(t.Context(), "attachments/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("rejected upload left orphaned payloads: %v", infos)
	}
}

func TestDeleteItemRemovesAttachmentPayloads(t *testing.T) {
	ts, blobs := newTestServer(t)
	claim := createClaim(t, ts.URL)
	item := createItem(t, ts.URL, claim.ID, "Laptop")

	url := fmt.Sprintf("%s/api/items/%s/attachments?file_name=receipt.pdf", ts.URL, item.ID)
	resp, err := http.Post(url, "application/pdf", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()

	del := doJSON(t, http.MethodDelete, ts.URL+"/api/items/"+item.ID, nil, nil)
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", del.StatusCode)
	}
	infos, err := blobs.List(t.Context(), "attachments/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("item deletion left orphaned payloads: %v", infos)
	}
}
