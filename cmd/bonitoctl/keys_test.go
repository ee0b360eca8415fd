package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeysIssuePrintsKey(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ctl-test.db")

	issue := newKeysIssueCmd()
	var out bytes.Buffer
	issue.SetOut(&out)
	issue.SetArgs([]string{"--db", dsn, "--org", "org-1", "--rate-limit", "30"})
	if err := issue.Execute(); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.Contains(out.String(), "bn-") {
		t.Fatalf("expected issued key in output, got %q", out.String())
	}
}

func TestKeysIssueRequiresOrg(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "ctl-test.db")
	issue := newKeysIssueCmd()
	issue.SilenceErrors = true
	issue.SilenceUsage = true
	issue.SetArgs([]string{"--db", dsn})
	if err := issue.Execute(); err == nil {
		t.Fatal("expected error when --org is missing")
	}
}
