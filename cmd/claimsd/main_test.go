package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestCLIBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-nope"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code %d, want 2", code)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("CLAIMSTACK_ADDR", "")
	if got := envOr("CLAIMSTACK_ADDR", ":8080"); got != ":8080" {
		t.Fatalf("fallback not used: %q", got)
	}
	t.Setenv("CLAIMSTACK_ADDR", ":9999")
	if got := envOr("CLAIMSTACK_ADDR", ":8080"); got != ":9999" {
		t.Fatalf("env not used: %q", got)
	}
}

func TestStdLoggerRendersPairs(t *testing.T) {
	var buf bytes.Buffer
	logger := newStdLogger(&buf)
	logger.Info("listening", "addr", ":8080")
	out := buf.String()
	if !strings.Contains(out, "INFO listening") || !strings.Contains(out, "addr=:8080") {
		t.Fatalf("unexpected log line %q", out)
	}
	logger.Warn("odd args", "dangling")
	if !strings.Contains(buf.String(), "WARN odd args") {
		t.Fatalf("dangling key must not break rendering: %q", buf.String())
	}
}

func TestExitFuncPatchable(t *testing.T) {
	var got int
	prev := exitFunc
	exitFunc = func(code int) { got = code }
	defer func() { exitFunc = prev }()

	exitFunc(3)
	if got != 3 {
		t.Fatalf("exit code %d", got)
	}
}
