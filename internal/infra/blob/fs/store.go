// Package fs implements a filesystem-backed payload Store for development
// and single-node deployments. Each payload is a regular file under the
// root; its content type, user metadata, and sha256 digest live in a JSON
// descriptor written next to it.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"claimstack/internal/blob/core"
)

// descriptorSuffix names the sidecar holding a payload's metadata. Listing
// walks descriptors rather than payload files, so a partially written
// payload without one is invisible.
const descriptorSuffix = ".attachment.json"

type descriptor struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SHA256      string            `json:"sha256"`
	SizeBytes   int64             `json:"size_bytes"`
	StoredAt    time.Time         `json:"stored_at"`
}

// Store holds payloads as files under a single root directory. Writes are
// create-only, so it needs no cross-process locking beyond atomic rename.
type Store struct {
	root string
}

// New returns a filesystem store rooted at path, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Driver identifies the backend.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

func (s *Store) paths(key string) (payloadPath, descPath string, err error) {
	if err := core.ValidateKey(key); err != nil {
		return "", "", err
	}
	payloadPath = filepath.Join(s.root, filepath.FromSlash(key))
	descPath = payloadPath + descriptorSuffix
	return payloadPath, descPath, nil
}

// Put streams the payload to a temp file while hashing it, renames it into
// place, then writes the descriptor. Writing an existing key is an error.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payloadPath, descPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(payloadPath); err == nil {
		return core.Info{}, fmt.Errorf("payload %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(payloadPath), 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(payloadPath), ".upload-*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), payloadPath); err != nil {
		return core.Info{}, err
	}

	d := descriptor{
		ContentType: opts.ContentType,
		Metadata:    copyMetadata(opts.Metadata),
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		SizeBytes:   size,
		StoredAt:    time.Now().UTC(),
	}
	if err := writeDescriptor(descPath, d); err != nil {
		return core.Info{}, err
	}
	return s.infoFor(key, d), nil
}

// Get opens the payload file and loads its descriptor.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	payloadPath, descPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := os.Open(payloadPath)
	if err != nil {
		return core.Info{}, nil, mapNotExist(key, err)
	}
	d, err := readDescriptor(descPath)
	if err != nil {
		_ = f.Close()
		return core.Info{}, nil, mapNotExist(key, err)
	}
	return s.infoFor(key, d), f, nil
}

// Head loads the descriptor only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, descPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	d, err := readDescriptor(descPath)
	if err != nil {
		return core.Info{}, mapNotExist(key, err)
	}
	return s.infoFor(key, d), nil
}

// Delete removes the payload and its descriptor, reporting whether the
// payload existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	payloadPath, descPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(payloadPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(payloadPath); err != nil {
		return false, err
	}
	_ = os.Remove(descPath)
	return true, nil
}

// List walks the root collecting descriptors under prefix, sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, descriptorSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, descriptorSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		d, err := readDescriptor(path)
		if err != nil {
			return err
		}
		infos = append(infos, s.infoFor(key, d))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns an unauthenticated development URL; only GET is
// supported.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	if err := core.ValidateKey(key); err != nil {
		return "", err
	}
	return s.devURL(key), nil
}

func (s *Store) infoFor(key string, d descriptor) core.Info {
	return core.Info{
		Key:          key,
		Size:         d.SizeBytes,
		ContentType:  d.ContentType,
		ETag:         d.SHA256,
		Metadata:     copyMetadata(d.Metadata),
		LastModified: d.StoredAt,
		URL:          s.devURL(key),
	}
}

func (s *Store) devURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "blob.localhost", Path: "/" + key}).String()
}

func mapNotExist(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return err
}

func writeDescriptor(path string, d descriptor) error {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readDescriptor(path string) (descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return descriptor{}, err
	}
	var d descriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return descriptor{}, err
	}
	return d, nil
}

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
