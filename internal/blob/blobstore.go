// Package blob re-exports the blob storage abstractions and wraps the infra
// drivers behind stable constructors. Other packages depend on blob.Store;
// only this package may import the infra implementations.
package blob

import (
	"claimstack/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation isn't supported by a driver.
var ErrUnsupported = core.ErrUnsupported

// ErrNotFound reports a key with no stored payload; test with errors.Is.
var ErrNotFound = core.ErrNotFound

// PayloadPrefix is the key prefix attachment payloads are stored under.
const PayloadPrefix = core.PayloadPrefix

// PayloadKey returns the canonical storage key for an attachment payload.
func PayloadKey(attachmentID string) string { return core.PayloadKey(attachmentID) }

// ValidateKey reports whether key satisfies the layout every driver enforces.
func ValidateKey(key string) error { return core.ValidateKey(key) }
