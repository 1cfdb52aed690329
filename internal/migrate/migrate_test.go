package migrate

import (
	"context"
	"io"
	"strings"
	"testing"

	"claimstack/internal/blob"
)

func seed(t *testing.T, store blob.Store, key, body string) {
	t.Helper()
	if _, err := store.Put(context.Background(), key, strings.NewReader(body), blob.PutOptions{ContentType: "application/pdf"}); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func readBack(t *testing.T, store blob.Store, key string) string {
	t.Helper()
	_, rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return string(body)
}

func TestRunCopiesEverything(t *testing.T) {
	src := blob.NewMemory()
	dst := blob.NewMemory()
	seed(t, src, "attachments/a", "payload-a")
	seed(t, src, "attachments/b", "payload-b")
	seed(t, src, "unrelated/c", "payload-c")

	report, err := Run(context.Background(), src, dst, Options{Prefix: "attachments/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Copied) != 2 || len(report.Skipped) != 0 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := readBack(t, dst, "attachments/a"); got != "payload-a" {
		t.Fatalf("payload corrupted: %q", got)
	}
	if _, err := dst.Head(context.Background(), "unrelated/c"); err == nil {
		t.Fatalf("keys outside the prefix must not be copied")
	}
	// source untouched
	if got := readBack(t, src, "attachments/a"); got != "payload-a" {
		t.Fatalf("source modified: %q", got)
	}
}

func TestRunSkipsAlreadyPresent(t *testing.T) {
	src := blob.NewMemory()
	dst := blob.NewMemory()
	seed(t, src, "attachments/a", "payload-a")
	seed(t, dst, "attachments/a", "payload-a")

	report, err := Run(context.Background(), src, dst, Options{Prefix: "attachments/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Skipped) != 1 || len(report.Copied) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunReplacesMismatchedCopy(t *testing.T) {
	src := blob.NewMemory()
	dst := blob.NewMemory()
	seed(t, src, "attachments/a", "full payload")
	seed(t, dst, "attachments/a", "trunc")

	report, err := Run(context.Background(), src, dst, Options{Prefix: "attachments/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Copied) != 1 {
		t.Fatalf("mismatched key must be re-copied: %+v", report)
	}
	if got := readBack(t, dst, "attachments/a"); got != "full payload" {
		t.Fatalf("destination not replaced: %q", got)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	src := blob.NewMemory()
	dst := blob.NewMemory()
	seed(t, src, "attachments/a", "payload-a")

	report, err := Run(context.Background(), src, dst, Options{Prefix: "attachments/", DryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.DryRun || len(report.Copied) != 1 {
		t.Fatalf("dry run must report would-copy keys: %+v", report)
	}
	if infos, _ := dst.List(context.Background(), ""); len(infos) != 0 {
		t.Fatalf("dry run wrote to the destination: %v", infos)
	}
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	src := blob.NewMemory()
	seed(t, src, "attachments/a", "payload-a")
	seed(t, src, "attachments/b", "payload-b")
	dst := &failingStore{Store: blob.NewMemory(), failKey: "attachments/a"}

	report, err := Run(context.Background(), src, dst, Options{Prefix: "attachments/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Key != "attachments/a" {
		t.Fatalf("failure not recorded: %+v", report)
	}
	if len(report.Copied) != 1 || report.Copied[0] != "attachments/b" {
		t.Fatalf("run must continue past failures: %+v", report)
	}
}

func TestVerifyReportsMissingAndMismatched(t *testing.T) {
	src := blob.NewMemory()
	dst := blob.NewMemory()
	seed(t, src, "attachments/a", "payload-a")
	seed(t, src, "attachments/b", "payload-b")
	seed(t, dst, "attachments/b", "short")

	failures, err := Verify(context.Background(), src, dst, "attachments/")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", failures)
	}
}

func TestCopySingleKey(t *testing.T) {
	src := blob.NewMemory()
	dst := blob.NewMemory()
	seed(t, src, "attachments/a", "payload-a")
	seed(t, dst, "attachments/a", "stale")

	if err := Copy(context.Background(), src, dst, "attachments/a"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if got := readBack(t, dst, "attachments/a"); got != "payload-a" {
		t.Fatalf("copy did not replace: %q", got)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	src := blob.NewMemory()
	dst := blob.NewMemory()
	seed(t, src, "attachments/a", "payload-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, src, dst, Options{Prefix: "attachments/"}); err == nil {
		t.Fatalf("cancelled run must stop with an error")
	}
}

// failingStore wraps a Store and fails writes on one key.
type failingStore struct {
	blob.Store
	failKey string
}

func (s *failingStore) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if key == s.failKey {
		return blob.Info{}, io.ErrUnexpectedEOF
	}
	return s.Store.Put(ctx, key, r, opts)
}
