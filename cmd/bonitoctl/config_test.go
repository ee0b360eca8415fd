package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigValidateAcceptsValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yaml := "strategy:\n  mode: fallback\ntargets:\n  - virtual_key: openai\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newConfigValidateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("Config is valid")) {
		t.Fatalf("output = %q", out.String())
	}
}

func TestConfigValidateRejectsMissingTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yaml := "strategy:\n  mode: fallback\ntargets: []\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newConfigValidateCmd()
	cmd.SetArgs([]string{path})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected validation error for empty targets")
	}
}
