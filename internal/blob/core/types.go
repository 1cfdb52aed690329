// Package core defines the contract shared by the backends that hold
// attachment payloads: the Store interface, the payload key layout, and the
// sentinel errors every driver maps its misses onto.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem is the local filesystem backend (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 is an S3-compatible backend (AWS S3, R2, MinIO).
	DriverS3 Driver = "s3"
	// DriverMemory is the in-memory backend used in tests.
	DriverMemory Driver = "memory"
)

// PayloadPrefix is the key prefix under which attachment payloads live in
// every backend. The migration tool copies this prefix by default.
const PayloadPrefix = "attachments/"

// PayloadKey returns the canonical storage key for an attachment payload.
func PayloadKey(attachmentID string) string { return PayloadPrefix + attachmentID }

// ValidateKey enforces the key discipline shared by every driver: keys are
// relative slash-separated paths with no empty or dot segments, so a key can
// never escape a filesystem root or alias another object. Every Store method
// that takes a key rejects invalid ones before touching the backend.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("blobstore: empty key")
	}
	if strings.ContainsRune(key, '\\') {
		return fmt.Errorf("blobstore: invalid key %q: backslash", key)
	}
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "":
			return fmt.Errorf("blobstore: invalid key %q: empty segment", key)
		case ".", "..":
			return fmt.Errorf("blobstore: invalid key %q: dot segment", key)
		}
	}
	return nil
}

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method  string        // GET|PUT (currently only GET used internally)
	Expiry  time.Duration // default 15m
	Headers map[string]string
}

// Info describes a stored payload. ETag is the hex sha256 of the content for
// the filesystem and memory backends; S3 reports whatever the service
// returns, so cross-backend comparisons must tolerate a mismatch.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the backend interface for attachment payloads. Put is
// create-only: writing an existing key is an error. Get and Head report a
// missing key by wrapping ErrNotFound.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

// ErrNotFound reports that no payload is stored under the requested key.
var ErrNotFound = errors.New("blobstore: payload not found")

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("blobstore: unsupported operation")
