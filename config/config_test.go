package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
subject: ./ft_ssl
reference:
  path: /usr/bin/openssl
algorithms: [md5]
trials: 250
timeout: 500ms
work_dir: /tmp/hashdiff
seed: 42
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashdiff.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Trials != 250 || cfg.Seed != 42 || cfg.Reference.Path != "/usr/bin/openssl" {
		t.Fatalf("decoded values lost: %+v", cfg)
	}
	if cfg.MaxOptions != 4 || cfg.MaxFiles != 3 || cfg.MaxPayload != 1024 || cfg.MaxLiteral != 20 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if len(cfg.Algorithms) != 1 || cfg.Algorithms[0] != "md5" {
		t.Fatalf("algorithms: %v", cfg.Algorithms)
	}
	d, err := cfg.TimeoutDuration()
	if err != nil || d != 500*time.Millisecond {
		t.Fatalf("timeout: %v %v", d, err)
	}
	if cfg.DisplayNames["sha256"] != "SHA2-256" {
		t.Fatalf("display names: %v", cfg.DisplayNames)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("subject: x\nthreads: 8\n"))
	if err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *File {
		c := Default()
		c.Subject = "./ft_ssl"
		c.WorkDir = "/tmp/w"
		return c
	}
	tests := []struct {
		name   string
		mutate func(*File)
		want   string
	}{
		{"subject", func(c *File) { c.Subject = "" }, "subject"},
		{"work_dir", func(c *File) { c.WorkDir = " " }, "work_dir"},
		{"reference", func(c *File) { c.Reference.Path = "" }, "reference.path"},
		{"algorithms", func(c *File) { c.Algorithms = nil }, "algorithms"},
		{"duplicate_algorithm", func(c *File) { c.Algorithms = []string{"md5", "md5"} }, "twice"},
		{"trials", func(c *File) { c.Trials = 0 }, "trials"},
		{"max_options", func(c *File) { c.MaxOptions = 9 }, "max_options"},
		{"max_files", func(c *File) { c.MaxFiles = 0 }, "max_files"},
		{"timeout", func(c *File) { c.Timeout = "soon" }, "timeout"},
		{"timeout_zero", func(c *File) { c.Timeout = "0s" }, "timeout"},
		{"log_level", func(c *File) { c.LogLevel = "TRACE" }, "log_level"},
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HASHDIFF_SUBJECT":        "/opt/ft_ssl",
		"HASHDIFF_TRIALS":         "7",
		"HASHDIFF_SEED":           "18446744073709551615",
		"HASHDIFF_ALGORITHMS":     "sha256, md5",
		"HASHDIFF_REFERENCE":      "/usr/local/bin/openssl",
		"HASHDIFF_REFERENCE_ARGS": "dgst",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(env); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Subject != "/opt/ft_ssl" || cfg.Trials != 7 || cfg.Seed != ^uint64(0) {
		t.Fatalf("scalar overlay: %+v", cfg)
	}
	if strings.Join(cfg.Algorithms, "|") != "sha256|md5" {
		t.Fatalf("algorithms overlay: %v", cfg.Algorithms)
	}
	if cfg.Reference.Path != "/usr/local/bin/openssl" || len(cfg.Reference.Args) != 1 {
		t.Fatalf("nested overlay: %+v", cfg.Reference)
	}
	if cfg.MaxFiles != 3 {
		t.Fatalf("unset variable changed a field: %d", cfg.MaxFiles)
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(map[string]string{"HASHDIFF_TRIALS": "many"})
	if err == nil || !strings.Contains(err.Error(), "Trials") {
		t.Fatalf("want Trials parse error, got %v", err)
	}
	if cfg.Trials != 100 {
		t.Fatalf("failed overlay changed trials: %d", cfg.Trials)
	}
}

func TestApplyEnvNilOverlaysNothing(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(nil); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Subject != "" || cfg.Trials != 100 || strings.Join(cfg.Algorithms, "|") != "md5|sha256" {
		t.Fatalf("nil environment changed the config: %+v", cfg)
	}
}

func TestApplyEnvEmptyListEntriesDropped(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(map[string]string{"HASHDIFF_ALGORITHMS": " md5 ,,sha256 "}); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if strings.Join(cfg.Algorithms, "|") != "md5|sha256" {
		t.Fatalf("algorithms not trimmed: %q", cfg.Algorithms)
	}
}
