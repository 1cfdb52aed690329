package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// contract tests exercised against every driver through the facade

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fs,
		"s3":     NewMockS3ForTests(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte("receipt body")

			info, err := store.Put(ctx, "attachments/receipt.pdf", bytes.NewReader(payload), PutOptions{
				ContentType: "application/pdf",
				Metadata:    map[string]string{"file_name": "receipt.pdf"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(payload)) {
				t.Fatalf("size %d, want %d", info.Size, len(payload))
			}

			got, rc, err := store.Get(ctx, "attachments/receipt.pdf")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()
			body, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(body, payload) {
				t.Fatalf("body %q", body)
			}
			if got.ContentType != "application/pdf" {
				t.Fatalf("content type %q", got.ContentType)
			}
		})
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
				t.Fatalf("first put: %v", err)
			}
			if _, err := store.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil {
				t.Fatalf("second put of the same key must fail")
			}
		})
	}
}

func TestHeadAndDelete(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Head(ctx, "missing"); err == nil {
				t.Fatalf("head of missing key must fail")
			}
			if _, err := store.Put(ctx, "k", strings.NewReader("data"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			info, err := store.Head(ctx, "k")
			if err != nil {
				t.Fatalf("head: %v", err)
			}
			if info.Size != 4 {
				t.Fatalf("size %d", info.Size)
			}

			deleted, err := store.Delete(ctx, "k")
			if err != nil || !deleted {
				t.Fatalf("delete: %v deleted=%v", err, deleted)
			}
			if _, err := store.Head(ctx, "k"); err == nil {
				t.Fatalf("deleted key still visible")
			}
			deleted, err = store.Delete(ctx, "k")
			if err != nil {
				t.Fatalf("repeat delete errored: %v", err)
			}
			// S3 deletes are idempotent and report success for absent keys
			if deleted && store.Driver() != DriverS3 {
				t.Fatalf("repeat delete must report false")
			}
		})
	}
}

func TestListByPrefix(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			keys := []string{"attachments/a", "attachments/b", "other/c"}
			for _, k := range keys {
				if _, err := store.Put(ctx, k, strings.NewReader("x"), PutOptions{}); err != nil {
					t.Fatalf("put %s: %v", k, err)
				}
			}
			infos, err := store.List(ctx, "attachments/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("listed %d keys, want 2: %v", len(infos), infos)
			}
			for _, info := range infos {
				if !strings.HasPrefix(info.Key, "attachments/") {
					t.Fatalf("listed key outside prefix: %q", info.Key)
				}
			}
		})
	}
}

func TestAllDriversRejectInvalidKeys(t *testing.T) {
	bad := []string{"", "../escape", "a/../../b", "/absolute", "trailing/", "a//b", `a\b`, "."}
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range bad {
				if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
					t.Errorf("put %q must be rejected", key)
				}
				if _, err := store.Head(ctx, key); err == nil {
					t.Errorf("head %q must be rejected", key)
				}
			}
		})
	}
}

func TestValidateKeyAcceptsPayloadLayout(t *testing.T) {
	key := PayloadKey("att-123")
	if key != "attachments/att-123" {
		t.Fatalf("payload key %q", key)
	}
	if err := ValidateKey(key); err != nil {
		t.Fatalf("canonical payload key rejected: %v", err)
	}
}

func TestMissingKeyReportsNotFound(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Head(ctx, "attachments/absent"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("head error %v, want ErrNotFound", err)
			}
			_, _, err := store.Get(ctx, "attachments/absent")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("get error %v, want ErrNotFound", err)
			}
		})
	}
}

func TestContentDigestETags(t *testing.T) {
	payload := []byte("etag me")
	sum := sha256.Sum256(payload)
	want := hex.EncodeToString(sum[:])

	for _, name := range []string{"memory", "fs"} {
		store := drivers(t)[name]
		info, err := store.Put(context.Background(), "attachments/e", bytes.NewReader(payload), PutOptions{})
		if err != nil {
			t.Fatalf("%s put: %v", name, err)
		}
		if info.ETag != want {
			t.Fatalf("%s etag %q, want sha256 %q", name, info.ETag, want)
		}
	}
}

func TestFilesystemWritesDescriptorSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("filesystem store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "attachments/a.pdf", strings.NewReader("x"), PutOptions{ContentType: "application/pdf"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	desc := filepath.Join(root, "attachments", "a.pdf.attachment.json")
	raw, err := os.ReadFile(desc)
	if err != nil {
		t.Fatalf("descriptor sidecar: %v", err)
	}
	for _, field := range []string{`"content_type"`, `"sha256"`, `"size_bytes"`, `"stored_at"`} {
		if !strings.Contains(string(raw), field) {
			t.Fatalf("descriptor missing %s: %s", field, raw)
		}
	}

	// the sidecar is metadata, not a payload
	infos, err := store.List(ctx, "attachments/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "attachments/a.pdf" {
		t.Fatalf("listed %v", infos)
	}
}

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	t.Setenv("CLAIMSTACK_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver %q", store.Driver())
	}

	t.Setenv("CLAIMSTACK_BLOB_DRIVER", "fs")
	t.Setenv("CLAIMSTACK_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver %q", store.Driver())
	}

	t.Setenv("CLAIMSTACK_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}
