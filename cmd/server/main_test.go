package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `server:
  host: 127.0.0.1
  port: 8088
  mode: test
database:
  driver: sqlite
  sqlite:
    path: beagle.db
log:
  level: info
  format: text
remote:
  base_url: https://api.example.com/v1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestCheckCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"check", "--config", writeConfig(t, validConfig)})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := out.String(); !strings.Contains(got, "config ok: test mode on 127.0.0.1:8088, remote https://api.example.com/v1") {
		t.Errorf("output = %q", got)
	}
}

func TestCheckCommand_InvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", "--config", writeConfig(t, strings.Replace(validConfig, "mode: test", "mode: staging", 1))})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid server.mode") {
		t.Fatalf("Execute() error = %v, want invalid server.mode", err)
	}
}
