// Package migrate copies attachment payloads between blob stores, for moving
// a deployment from one backend to another (filesystem to S3, S3 to R2).
// The source is never modified; a migration can be re-run safely and will
// skip everything already copied.
package migrate

import (
	"context"
	"fmt"

	"claimstack/internal/blob"
)

// Options controls a migration run.
type Options struct {
	// Prefix restricts the run to keys under the given prefix. Empty means
	// every key in the source.
	Prefix string

	// DryRun reports what would be copied without writing anything.
	DryRun bool

	// Logger receives per-key progress. Nil discards it.
	Logger Logger
}

// Logger is the minimal structured logging surface the migrator emits to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Report summarizes a migration run.
type Report struct {
	Copied  []string  `json:"copied"`
	Skipped []string  `json:"skipped"`
	Failed  []Failure `json:"failed"`
	DryRun  bool      `json:"dry_run"`
}

// Failure records one key that could not be migrated.
type Failure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Total reports the number of keys examined.
func (r Report) Total() int {
	return len(r.Copied) + len(r.Skipped) + len(r.Failed)
}

// Run copies every payload under opts.Prefix from src to dst. A key already
// present in dst with the same size is skipped; when both stores report an
// ETag, it must match too, otherwise the key is re-copied. Individual
// failures are recorded and do not stop the run. The returned error covers
// only the initial listing.
func Run(ctx context.Context, src, dst blob.Store, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	report := Report{DryRun: opts.DryRun}

	infos, err := src.List(ctx, opts.Prefix)
	if err != nil {
		return report, fmt.Errorf("list source: %w", err)
	}
	logger.Info("migration started", "keys", len(infos), "prefix", opts.Prefix, "dry_run", opts.DryRun)

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch copied, err := migrateOne(ctx, src, dst, info, opts.DryRun); {
		case err != nil:
			logger.Error("key failed", "key", info.Key, "error", err)
			report.Failed = append(report.Failed, Failure{Key: info.Key, Error: err.Error()})
		case copied:
			logger.Debug("key copied", "key", info.Key, "size", info.Size)
			report.Copied = append(report.Copied, info.Key)
		default:
			logger.Debug("key skipped", "key", info.Key)
			report.Skipped = append(report.Skipped, info.Key)
		}
	}

	logger.Info("migration finished",
		"copied", len(report.Copied), "skipped", len(report.Skipped), "failed", len(report.Failed))
	return report, nil
}

func migrateOne(ctx context.Context, src, dst blob.Store, info blob.Info, dryRun bool) (bool, error) {
	if existing, err := dst.Head(ctx, info.Key); err == nil {
		if existing.Size == info.Size && (existing.ETag == "" || info.ETag == "" || existing.ETag == info.ETag) {
			return false, nil
		}
		// present but different: re-copy under a fresh key is not an option,
		// the key is the attachment's identity, so replace it
		if !dryRun {
			if _, err := dst.Delete(ctx, info.Key); err != nil {
				return false, fmt.Errorf("replace existing: %w", err)
			}
		}
	}
	if dryRun {
		return true, nil
	}

	srcInfo, rc, err := src.Get(ctx, info.Key)
	if err != nil {
		return false, fmt.Errorf("read source: %w", err)
	}
	defer func() { _ = rc.Close() }()

	written, err := dst.Put(ctx, info.Key, rc, blob.PutOptions{
		ContentType: srcInfo.ContentType,
		Metadata:    srcInfo.Metadata,
	})
	if err != nil {
		return false, fmt.Errorf("write destination: %w", err)
	}
	if written.Size != srcInfo.Size {
		if _, delErr := dst.Delete(ctx, info.Key); delErr != nil {
			return false, fmt.Errorf("size mismatch after copy (%d != %d), cleanup failed: %v", written.Size, srcInfo.Size, delErr)
		}
		return false, fmt.Errorf("size mismatch after copy: wrote %d, expected %d", written.Size, srcInfo.Size)
	}
	return true, nil
}

// Verify re-reads every key under prefix from both stores and reports keys
// whose destination copy is missing or differs in size. It writes nothing.
func Verify(ctx context.Context, src, dst blob.Store, prefix string) ([]Failure, error) {
	infos, err := src.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list source: %w", err)
	}
	var failures []Failure
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		existing, err := dst.Head(ctx, info.Key)
		if err != nil {
			failures = append(failures, Failure{Key: info.Key, Error: "missing in destination"})
			continue
		}
		if existing.Size != info.Size {
			failures = append(failures, Failure{
				Key:   info.Key,
				Error: fmt.Sprintf("size mismatch: source %d, destination %d", info.Size, existing.Size),
			})
		}
	}
	return failures, nil
}

// Copy streams one blob between stores without metadata comparison, for
// ad-hoc repair of a single key.
func Copy(ctx context.Context, src, dst blob.Store, key string) error {
	info, rc, err := src.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	defer func() { _ = rc.Close() }()
	if _, err := dst.Head(ctx, key); err == nil {
		if _, err := dst.Delete(ctx, key); err != nil {
			return fmt.Errorf("replace existing: %w", err)
		}
	}
	if _, err := dst.Put(ctx, key, rc, blob.PutOptions{ContentType: info.ContentType, Metadata: info.Metadata}); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}
	return nil
}
