package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerRenamesKeysAndInjectsTrial(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug)
	ctx := WithTrial(context.Background(), TrialCtx{RunID: "r1", Algorithm: "md5"})
	ctx = WithTrial(ctx, TrialCtx{Trial: 3})

	log.Error(ctx, "trial crashed", errors.New("signal 11"), "status", 11)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got["message"] != "trial crashed" {
		t.Fatalf("message key: %v", got)
	}
	if _, ok := got["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", got)
	}
	if got["run_id"] != "r1" || got["algorithm"] != "md5" || got["trial"] != float64(3) {
		t.Fatalf("trial context missing: %v", got)
	}
	if got["service"] != "hashdiff" || got["status"] != float64(11) {
		t.Fatalf("attrs missing: %v", got)
	}
	errGroup, ok := got["error"].(map[string]any)
	if !ok || errGroup["msg"] != "signal 11" {
		t.Fatalf("error group: %v", got["error"])
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn)
	log.Debug(context.Background(), "not verifiable")
	log.Info(context.Background(), "summary")
	log.Warn(context.Background(), "timeout")
	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["message"] != "timeout" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "verbose")
	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "shown")
	if lines := decodeLines(t, &buf); len(lines) != 1 {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, lvl := range []string{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if !ValidateLogLevel(lvl) {
			t.Fatalf("%s rejected", lvl)
		}
	}
	if ValidateLogLevel("debug") {
		t.Fatal("lowercase level accepted")
	}
}

func TestWithTrialMerges(t *testing.T) {
	ctx := WithTrial(context.Background(), TrialCtx{RunID: "r", Scenario: "boundary"})
	ctx = WithTrial(ctx, TrialCtx{Algorithm: "sha256"})
	tc, ok := FromContext(ctx)
	if !ok {
		t.Fatal("trial context missing")
	}
	if tc.RunID != "r" || tc.Scenario != "boundary" || tc.Algorithm != "sha256" {
		t.Fatalf("unexpected merge: %+v", tc)
	}
}

func TestGroupedKeysAreNotRenamed(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo)
	log.Error(context.Background(), "reference failed", errors.New("exit status 1"),
		slog.Group("detail", slog.String("msg", "inner"), slog.String("time", "later")))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got["message"] != "reference failed" {
		t.Fatalf("top-level message not renamed: %v", got)
	}
	errGroup, ok := got["error"].(map[string]any)
	if !ok || errGroup["msg"] != "exit status 1" {
		t.Fatalf("error group rewritten: %v", got["error"])
	}
	if _, ok := errGroup["message"]; ok {
		t.Fatalf("error group gained a message key: %v", errGroup)
	}
	detail, ok := got["detail"].(map[string]any)
	if !ok || detail["msg"] != "inner" || detail["time"] != "later" {
		t.Fatalf("nested group rewritten: %v", got["detail"])
	}
}
