package blob

import (
	fsstore "claimstack/internal/infra/blob/fs"
)

// NewFilesystem returns a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }
