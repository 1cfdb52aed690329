// Command claimsd serves the claims API. Storage, blob backend, and
// observability are selected through CLAIMSTACK_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"claimstack/internal/blob"
	"claimstack/internal/claims"
	"claimstack/internal/persistence"
	"claimstack/internal/server"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("claimsd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOr("CLAIMSTACK_ADDR", ":8080"), "listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(context.Background(), *addr, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "claimsd: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, addr string, stdout, stderr io.Writer) error {
	logger := newStdLogger(stderr)

	store, err := persistence.Open()
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	metrics, err := claims.NewPrometheusMetricsRecorder("claimstack", prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	serviceOpts := []claims.ServiceOption{
		claims.WithLogger(logger),
		claims.WithMetrics(metrics),
	}
	if tracePath := os.Getenv("CLAIMSTACK_TRACE_FILE"); tracePath != "" {
		f, err := os.OpenFile(tracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		serviceOpts = append(serviceOpts, claims.WithTracer(claims.NewJSONTracer(f)))
	}
	service := claims.NewService(store, serviceOpts...)

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(service, blobs, server.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		fmt.Fprintf(stdout, "claimsd listening on %s\n", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// stdLogger renders structured pairs through the stdlib logger.
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
