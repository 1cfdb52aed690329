// Command attachment-migrate copies attachment payloads from one blob
// backend to another, for example when moving a deployment from local
// filesystem storage to S3 or R2. The source store is never modified.
//
// Each side is described by a driver name plus a driver-specific target:
//
//	attachment-migrate -src fs:/var/claimstack/blobdata -dst s3:claims-bucket
//	attachment-migrate -src s3:old-bucket -dst s3:new-bucket -dry-run
//
// S3 credentials and endpoint come from the usual CLAIMSTACK_BLOB_S3_*
// environment variables and apply to both sides.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"claimstack/internal/blob"
	"claimstack/internal/migrate"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("attachment-migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	src := fs.String("src", "", "source store, driver:target (fs:<root> or s3:<bucket>)")
	dst := fs.String("dst", "", "destination store, driver:target (fs:<root> or s3:<bucket>)")
	prefix := fs.String("prefix", blob.PayloadPrefix, "key prefix to migrate")
	dryRun := fs.Bool("dry-run", false, "report what would be copied without writing")
	verify := fs.Bool("verify", false, "after copying, re-check every key in the destination")
	jsonOut := fs.Bool("json", false, "emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *src == "" || *dst == "" {
		fmt.Fprintln(stderr, "both -src and -dst are required")
		fs.Usage()
		return 2
	}
	if err := run(context.Background(), *src, *dst, *prefix, *dryRun, *verify, *jsonOut, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "attachment-migrate: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, srcSpec, dstSpec, prefix string, dryRun, verify, jsonOut bool, stdout, stderr io.Writer) error {
	src, err := openStore(ctx, srcSpec)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := openStore(ctx, dstSpec)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	report, err := migrate.Run(ctx, src, dst, migrate.Options{
		Prefix: prefix,
		DryRun: dryRun,
		Logger: newStdLogger(stderr),
	})
	if err != nil {
		return err
	}

	if verify && !dryRun {
		failures, err := migrate.Verify(ctx, src, dst, prefix)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		report.Failed = append(report.Failed, failures...)
	}

	if jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(stdout, "copied %d, skipped %d, failed %d of %d keys\n",
			len(report.Copied), len(report.Skipped), len(report.Failed), report.Total())
		for _, f := range report.Failed {
			fmt.Fprintf(stdout, "  failed %s: %s\n", f.Key, f.Error)
		}
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d keys failed", len(report.Failed))
	}
	return nil
}

// openStore parses a driver:target spec and opens the store it names.
func openStore(ctx context.Context, spec string) (blob.Store, error) {
	driver, target, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("invalid store spec %q, want driver:target", spec)
	}
	switch blob.Driver(driver) {
	case blob.DriverFilesystem:
		return blob.NewFilesystem(target)
	case blob.DriverS3:
		if target == "" {
			return nil, fmt.Errorf("s3 spec needs a bucket name")
		}
		cfg, err := s3ConfigFromEnv(target)
		if err != nil {
			return nil, err
		}
		return blob.NewS3(ctx, cfg)
	case blob.DriverMemory:
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func s3ConfigFromEnv(bucket string) (blob.S3Config, error) {
	return blob.S3Config{
		Bucket:          bucket,
		Region:          os.Getenv("CLAIMSTACK_BLOB_S3_REGION"),
		Endpoint:        os.Getenv("CLAIMSTACK_BLOB_S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		PathStyle:       strings.EqualFold(os.Getenv("CLAIMSTACK_BLOB_S3_PATH_STYLE"), "true"),
	}, nil
}

type stdLogger struct {
	l *log.Logger
}

func newStdLogger(w io.Writer) *stdLogger {
	return &stdLogger{l: log.New(w, "", log.LstdFlags|log.LUTC)}
}

func (s *stdLogger) log(level, msg string, args ...any) {
	line := level + " " + msg
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	s.l.Print(line)
}

func (s *stdLogger) Debug(msg string, args ...any) { s.log("DEBUG", msg, args...) }
func (s *stdLogger) Info(msg string, args ...any)  { s.log("INFO", msg, args...) }
func (s *stdLogger) Warn(msg string, args ...any)  { s.log("WARN", msg, args...) }
func (s *stdLogger) Error(msg string, args ...any) { s.log("ERROR", msg, args...) }
