package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "chitchat")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	_ = withTmpConfig(t)
	got := cfgDir()
	base := os.Getenv("XDG_CONFIG_HOME") + "/chitchat"
	if got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(keyPath(), base) || !strings.HasSuffix(keyPath(), "key.pem") {
		t.Fatalf("keyPath unexpected: %s", keyPath())
	}
	if !strings.HasPrefix(accountPath(), base) || !strings.HasSuffix(accountPath(), "account.json") {
		t.Fatalf("accountPath unexpected: %s", accountPath())
	}
}

func Test_account_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadAccount(); err == nil {
		t.Fatalf("expected error when account file missing")
	}
	if err := saveAccount(accountFile{Username: "alice", Tag: 42}); err != nil {
		t.Fatalf("saveAccount: %v", err)
	}
	got, err := loadAccount()
	if err != nil || got.Username != "alice" || got.Tag != 42 {
		t.Fatalf("loadAccount: %+v %v", got, err)
	}
	fi, err := os.Stat(accountPath())
	if err != nil || fi.Mode().Perm() != 0o600 {
		t.Fatalf("account file mode: %v %v", fi, err)
	}

	if err := saveAccount(accountFile{Username: "alice"}); err != nil {
		t.Fatalf("saveAccount: %v", err)
	}
	if _, err := loadAccount(); err == nil {
		t.Fatalf("want error for account without tag")
	}
}

func Test_identity_Persists(t *testing.T) {
	_ = withTmpConfig(t)

	a, err := identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	b, err := identity()
	if err != nil {
		t.Fatalf("identity reload: %v", err)
	}
	if !bytes.Equal(a.PublicBytes(), b.PublicBytes()) {
		t.Fatalf("identity must be reused across runs")
	}
}

func Test_readAll_File_And_Stdin(t *testing.T) {
	// file path
	tmp := filepath.Join(t.TempDir(), "f.txt")
	_ = os.WriteFile(tmp, []byte("hello"), 0o600)
	b, err := readAll(tmp)
	if err != nil || string(b) != "hello" {
		t.Fatalf("readAll(file): %q %v", b, err)
	}

	// stdin
	r, w, _ := os.Pipe()
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()
	go func() { _, _ = io.WriteString(w, "from-stdin"); _ = w.Close() }()
	b, err = readAll("-")
	if err != nil || string(b) != "from-stdin" {
		t.Fatalf("readAll(stdin): %q %v", b, err)
	}
}

func Test_printJSON_WritesPretty(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()

	printJSON(map[string]any{"a": 1})
	_ = w.Close()
	out, _ := io.ReadAll(r)

	var m map[string]any
	if json.Unmarshal(out, &m) != nil || m["a"] != float64(1) {
		t.Fatalf("printJSON produced invalid json: %s", string(out))
	}
	if !bytes.Contains(out, []byte("\n")) {
		t.Fatalf("printJSON should indent")
	}
}
